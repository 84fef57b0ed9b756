package router

import (
	"crypto/md5"
	"crypto/sha256"
	"hash/fnv"
	"strconv"
	"strings"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

// HeaderRangeCalculator decides whether a request lands on the canary based
// on a request attribute value, either by consistent hashing or by bucketing
// numeric ranges
type HeaderRangeCalculator struct{}

func NewHeaderRangeCalculator() *HeaderRangeCalculator {
	return &HeaderRangeCalculator{}
}

// ShouldRouteToCanary reports whether the attribute value falls inside the
// share of traffic currently allocated to the canary
func (hrc *HeaderRangeCalculator) ShouldRouteToCanary(routing *rolloutsv1.CanaryAttributeRangeRouting, value string, canaryPercentage int) bool {
	if !routing.Enabled || canaryPercentage <= 0 {
		return false
	}
	if routing.Strategy == "consistent-hash" {
		return hrc.hashSlot(routing, value, canaryPercentage)
	}
	return hrc.rangeBucket(value, canaryPercentage)
}

// hashSlot maps the value onto a fixed ring of slots, the leading
// canaryPercentage share of the ring belongs to the canary
func (hrc *HeaderRangeCalculator) hashSlot(routing *rolloutsv1.CanaryAttributeRangeRouting, value string, canaryPercentage int) bool {
	slotCount := 1000
	if routing.SlotCount > 0 {
		slotCount = routing.SlotCount
	}
	slot := int(hrc.calculateHash(routing.HashFunction, value) % uint32(slotCount))
	return slot < (slotCount*canaryPercentage)/100
}

// rangeBucket buckets numeric values modulo 100, non numeric values are
// hashed into the same buckets
func (hrc *HeaderRangeCalculator) rangeBucket(value string, canaryPercentage int) bool {
	num, err := strconv.Atoi(value)
	if err != nil {
		h := fnv.New32a()
		h.Write([]byte(value))
		num = int(h.Sum32())
	}
	return num%100 < canaryPercentage
}

// calculateHash hashes the value with the configured function,
// unknown functions fall back to FNV-1a
func (hrc *HeaderRangeCalculator) calculateHash(hashFunc, value string) uint32 {
	switch strings.ToLower(hashFunc) {
	case "md5":
		sum := md5.Sum([]byte(value))
		return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
	case "sha256":
		sum := sha256.Sum256([]byte(value))
		return uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])
	default:
		h := fnv.New32a()
		h.Write([]byte(value))
		return h.Sum32()
	}
}

// GetCanaryPercentage returns the traffic share for the given progression
// step, starting at the initial percentage and capped at the configured max
func (hrc *HeaderRangeCalculator) GetCanaryPercentage(routing *rolloutsv1.CanaryAttributeRangeRouting, currentStep, maxWeight int) int {
	if !routing.Enabled {
		return 0
	}

	step := 10
	if routing.StepPercentage > 0 {
		step = routing.StepPercentage
	}
	limit := 100
	if routing.MaxPercentage > 0 {
		limit = routing.MaxPercentage
	}

	percentage := currentStep * step
	if routing.InitialPercentage > 0 {
		percentage += routing.InitialPercentage
	}
	if percentage > limit {
		percentage = limit
	}
	return percentage
}
