package service

import "time"

// options — общие настройки сервисов.
type options struct {
	now func() time.Time
}

// Option — опция PackageService и ValidationService.
type Option func(*options)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
