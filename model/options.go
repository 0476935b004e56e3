package model

import (
	"time"

	"go.uber.org/zap"
)

// DefaultMetadataTimeout bounds the wait for the registry lock.
const DefaultMetadataTimeout = 5 * time.Second

type options struct {
	logger        *zap.Logger
	probe         MetadataProbe
	onContention  func(total int64)
	timeout       time.Duration
	autoAdd       bool
	contractsOnly bool
	implicitZero  bool
}

func defaultOptions() options {
	return options{
		probe:        TagProbe{},
		timeout:      DefaultMetadataTimeout,
		autoAdd:      true,
		implicitZero: true,
	}
}

// Option configures a Registry.
type Option func(*options)

// WithAutoAddMissingTypes controls whether unseen types are discovered and
// registered on first use. Enabled by default.
func WithAutoAddMissingTypes(enabled bool) Option {
	return func(o *options) {
		o.autoAdd = enabled
	}
}

// WithAutoAddContractTypesOnly restricts auto-discovery to types that carry
// contract metadata (proto struct tags or a ContractProvider).
func WithAutoAddContractTypesOnly(enabled bool) Option {
	return func(o *options) {
		o.contractsOnly = enabled
	}
}

// WithImplicitZeroDefaults controls whether zero scalar values are treated
// as defaults and left off the wire. Enabled by default.
func WithImplicitZeroDefaults(enabled bool) Option {
	return func(o *options) {
		o.implicitZero = enabled
	}
}

// WithMetadataTimeout sets how long metadata operations wait for the
// registry lock before failing with a MetadataTimeout error.
func WithMetadataTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the registry logger. Defaults to the package Logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithProbe replaces the metadata probe used by auto-discovery.
func WithProbe(p MetadataProbe) Option {
	return func(o *options) {
		if p != nil {
			o.probe = p
		}
	}
}

// WithContentionHandler registers a function called with the running
// contention total every time a lock attempt has to wait.
func WithContentionHandler(fn func(total int64)) Option {
	return func(o *options) {
		o.onContention = fn
	}
}
