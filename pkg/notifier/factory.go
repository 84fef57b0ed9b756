/*
Copyright 2020 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notifier

import "fmt"

// Factory creates notifiers based on the hook URL
type Factory struct {
	URL      string
	Token    string
	ProxyURL string
	Username string
	Channel  string
}

func NewFactory(url, token, proxyURL, username, channel string) *Factory {
	return &Factory{
		URL:      url,
		Token:    token,
		ProxyURL: proxyURL,
		Username: username,
		Channel:  channel,
	}
}

// Notifier returns a notifier implementation for the given provider
func (f Factory) Notifier(provider string) (Interface, error) {
	if f.URL == "" {
		return &NopNotifier{}, nil
	}

	var n Interface
	var err error
	switch provider {
	case "slack":
		n, err = NewSlack(f.URL, f.Token, f.ProxyURL, f.Username, f.Channel)
	case "discord":
		n, err = NewDiscord(f.URL, f.ProxyURL, f.Username, f.Channel)
	case "rocket":
		n, err = NewRocket(f.URL, f.ProxyURL, f.Username, f.Channel)
	default:
		err = fmt.Errorf("provider %s not supported", provider)
	}

	if err != nil {
		n = &NopNotifier{}
	}
	return n, err
}

// NopNotifier does nothing
type NopNotifier struct{}

func (n *NopNotifier) Post(workload string, namespace string, message string, fields []Field, severity string) error {
	return nil
}
