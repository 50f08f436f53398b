package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	paramRetryInterval = "retry-interval"  // constant
	paramRetryMaxCount = "retry-max-count" // constant + exponential
	paramRetryMaxTime  = "retry-max-time"  // constant + exponential
	paramRetryPolicy   = "retry-policy"

	defaultRetryInterval = 1 * time.Second
	defaultRetryMaxCount = 0
	defaultRetryMaxTime  = 15 * time.Second
	defaultRetryPolicy   = PolicyExponential

	// PolicyConstant retries at a fixed interval.
	PolicyConstant = "constant"
	// PolicyDisabled never retries.
	PolicyDisabled = "disabled"
	// PolicyExponential retries with a growing, randomized interval.
	PolicyExponential = "exponential"
)

// BackoffFactory creates a fresh backoff for every operation being retried.
type BackoffFactory func() backoff.BackOff

// RetryPolicy is the retry configuration of a backend that talks to a remote endpoint.
type RetryPolicy struct {
	Policy   string
	Interval time.Duration // Only used by the constant policy
	MaxCount uint64        // Zero for no limit
	MaxTime  time.Duration
}

// RetryPolicyFromViper reads the retry-* settings, applying defaults.
func RetryPolicyFromViper(v *viper.Viper) (RetryPolicy, error) {
	v.SetDefault(paramRetryInterval, defaultRetryInterval)
	v.SetDefault(paramRetryMaxCount, defaultRetryMaxCount)
	v.SetDefault(paramRetryMaxTime, defaultRetryMaxTime)
	v.SetDefault(paramRetryPolicy, defaultRetryPolicy)

	maxCount := v.GetInt64(paramRetryMaxCount)
	if maxCount < 0 {
		return RetryPolicy{}, errors.New(paramRetryMaxCount + " must be zero or positive")
	}
	p := RetryPolicy{
		Policy:   v.GetString(paramRetryPolicy),
		Interval: v.GetDuration(paramRetryInterval),
		MaxCount: uint64(maxCount),
		MaxTime:  v.GetDuration(paramRetryMaxTime),
	}
	return p, p.Validate()
}

// Validate checks the policy name and bounds.
func (p RetryPolicy) Validate() error {
	if p.Interval <= 0 {
		return errors.New(paramRetryInterval + " must be positive")
	}
	if p.MaxTime <= 0 {
		return errors.New(paramRetryMaxTime + " must be positive")
	}
	switch p.Policy {
	case PolicyDisabled, PolicyConstant, PolicyExponential:
		return nil
	default:
		return fmt.Errorf("%s (%s) not one of %s, %s, or %s", paramRetryPolicy, p.Policy, PolicyDisabled, PolicyConstant, PolicyExponential)
	}
}

// Factory returns a BackoffFactory for the policy.
//
// A constant policy is an ExponentialBackOff with a Multiplier of 1, which keeps the
// randomization and the maximum elapsed time that backoff.ConstantBackOff lacks.
func (p RetryPolicy) Factory() BackoffFactory {
	switch p.Policy {
	case PolicyDisabled:
		return func() backoff.BackOff { return &backoff.StopBackOff{} }
	case PolicyConstant:
		return newBackoffFactory(1.0, p.MaxTime, p.Interval, p.MaxCount)
	default:
		return newBackoffFactory(backoff.DefaultMultiplier, p.MaxTime, backoff.DefaultInitialInterval, p.MaxCount)
	}
}

func newBackoffFactory(multiplier float64, maxElapsedTime, interval time.Duration, maxRetries uint64) BackoffFactory {
	return func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.Multiplier = multiplier
		bo.MaxElapsedTime = maxElapsedTime
		bo.InitialInterval = interval
		bo.Reset() // InitialInterval only takes effect after a Reset
		if maxRetries == 0 {
			return bo
		}
		return backoff.WithMaxRetries(bo, maxRetries)
	}
}

// Retry runs op until it succeeds, the backoff gives up, or ctx is done.
// Every failed attempt is logged at warn level with the given fields.
// Wrap an error with backoff.Permanent to stop retrying immediately.
func Retry(ctx context.Context, factory BackoffFactory, fields logrus.Fields, op func() error) error {
	attempt := 0
	err := backoff.RetryNotify(op, backoff.WithContext(factory(), ctx), func(err error, next time.Duration) {
		attempt++
		logrus.WithFields(fields).WithError(err).WithField("attempt", attempt).Warnf("Retrying in %v", next)
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%v: %w", err, ctxErr)
	}
	return err
}
