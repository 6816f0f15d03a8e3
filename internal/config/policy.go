package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingPolicy controls how subscription state is projected onto users.
type BillingPolicy struct {
	ClearNextBillingWhenInactive bool         `mapstructure:"clearNextBillingWhenInactive"`
	StatusRules                  []StatusRule `mapstructure:"statusRules"`
	ProtectedStatuses            []string     `mapstructure:"protectedStatuses"`
}

// StatusRule maps a subscription status to a user status. OnlyFrom limits the
// rule to users currently in one of the listed statuses.
type StatusRule struct {
	SubscriptionStatus string   `mapstructure:"subscriptionStatus"`
	UserStatus         string   `mapstructure:"userStatus"`
	OnlyFrom           []string `mapstructure:"onlyFrom"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		ClearNextBillingWhenInactive: true,
		StatusRules: []StatusRule{
			{SubscriptionStatus: "active", UserStatus: "approved"},
			{SubscriptionStatus: "past_due", UserStatus: "on_hold"},
			{SubscriptionStatus: "unpaid", UserStatus: "on_hold"},
			{SubscriptionStatus: "canceled", UserStatus: "on_hold", OnlyFrom: []string{"approved"}},
		},
		ProtectedStatuses: []string{"rejected"},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy BillingPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing_policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/billsync/config")
	v.AddConfigPath("/etc/billsync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BILLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path := strings.TrimSpace(v.GetString("policy_file")); path != "" {
		v.SetConfigFile(path)
	}

	return newPolicyHolder(v, log)
}

// NewPolicyHolderFromFile loads the policy from an explicit file and watches it.
func NewPolicyHolderFromFile(path string, log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newPolicyHolder(v, log)
}

func newPolicyHolder(v *viper.Viper, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	// A policy file must carry its own statusRules; the scalar settings fall
	// back to the defaults when the file leaves them out.
	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.clearNextBillingWhenInactive", defaults.ClearNextBillingWhenInactive)
	v.SetDefault("billing.protectedStatuses", defaults.ProtectedStatuses)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
		v.SetDefault("billing.statusRules", defaults.StatusRules)
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePolicy(v)
			if err != nil {
				log.Warn("billing policy reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("billing policy reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *PolicyHolder) Get() BillingPolicy {
	return h.current.Load().(BillingPolicy)
}

type policyFile struct {
	Billing BillingPolicy `mapstructure:"billing"`
}

// decodePolicy unmarshals every settled key so nested defaults merge with the file.
func decodePolicy(v *viper.Viper) (BillingPolicy, error) {
	var file policyFile
	if err := v.Unmarshal(&file); err != nil {
		return BillingPolicy{}, err
	}
	if err := validateBillingPolicy(file.Billing); err != nil {
		return BillingPolicy{}, err
	}
	return file.Billing, nil
}

var userStatuses = map[string]struct{}{
	"pending":  {},
	"approved": {},
	"rejected": {},
	"on_hold":  {},
}

func validateBillingPolicy(policy BillingPolicy) error {
	if len(policy.StatusRules) == 0 {
		return errors.New("billing.statusRules cannot be empty")
	}
	seen := map[string]struct{}{}
	for _, rule := range policy.StatusRules {
		status := strings.TrimSpace(rule.SubscriptionStatus)
		if status == "" {
			return errors.New("billing.statusRules: subscriptionStatus is required")
		}
		if _, ok := seen[status]; ok {
			return fmt.Errorf("billing.statusRules: duplicate rule for %q", status)
		}
		seen[status] = struct{}{}
		if _, ok := userStatuses[rule.UserStatus]; !ok {
			return fmt.Errorf("billing.statusRules: unknown user status %q", rule.UserStatus)
		}
		for _, from := range rule.OnlyFrom {
			if _, ok := userStatuses[from]; !ok {
				return fmt.Errorf("billing.statusRules: unknown user status %q in onlyFrom", from)
			}
		}
	}
	for _, status := range policy.ProtectedStatuses {
		if _, ok := userStatuses[status]; !ok {
			return fmt.Errorf("billing.protectedStatuses: unknown user status %q", status)
		}
	}
	return nil
}
