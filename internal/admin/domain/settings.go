// Package domain defines the admin module's persistent settings store.
package domain

import (
	"context"
	"errors"
)

// Setting keys used by the admin module.
const (
	KeyPromoWindowStart = "promo.window.start"
	KeyPromoWindowEnd   = "promo.window.end"
)

// ErrSettingNotFound is returned when a key has no stored value.
var ErrSettingNotFound = errors.New("setting not found")

// SettingsRepository is a small durable key-value store for operator-set
// overrides that must survive restarts.
type SettingsRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
