package models

// DefaultRiskFactor is the copy ratio in percent applied when none is configured.
const DefaultRiskFactor = 100.0

// FollowerConfig is a snapshot of one active copy subscription.
type FollowerConfig struct {
	FollowerID   string  `json:"follower_id" yaml:"follower_id"`
	Login        int64   `json:"login" yaml:"login"`
	Password     string  `json:"-" yaml:"password"`
	Server       string  `json:"server" yaml:"server"`
	IsPremium    bool    `json:"is_premium" yaml:"is_premium"`
	RiskFactor   float64 `json:"risk_factor" yaml:"risk_factor"`
	InvertCopy   bool    `json:"invert_copy" yaml:"invert_copy"`
	SessionID    int64   `json:"session_id" yaml:"session_id"`
	TargetTicket int64   `json:"target_ticket,omitempty" yaml:"-"`
}

// RiskPercent returns the configured risk factor, defaulting to 100.
func (f FollowerConfig) RiskPercent() float64 {
	if f.RiskFactor == 0 {
		return DefaultRiskFactor
	}
	return f.RiskFactor
}

func (f FollowerConfig) Priority() Priority {
	if f.IsPremium {
		return PriorityPremium
	}
	return PriorityFree
}
