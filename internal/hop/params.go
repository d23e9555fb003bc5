package hop

// Params tunes the hop protocol. All durations are seconds of engine time.
type Params struct {
	HopTimeoutS        float64 `yaml:"hop_timeout_s"`
	SettleDelayS       float64 `yaml:"settle_delay_s"`
	ReminderAfterS     float64 `yaml:"reminder_after_s"`
	ReminderEveryS     float64 `yaml:"reminder_every_s"`
	StalenessWindowS   float64 `yaml:"staleness_window_s"`
	MaxRetries         int     `yaml:"max_retries"`
	CrossContinentTTLS float64 `yaml:"cross_continent_ttl_s"`
	RecentHopTTLS      float64 `yaml:"recent_hop_ttl_s"`
	DeclinedTTLS       float64 `yaml:"declined_ttl_s"`
	LeaveRetryEveryS   float64 `yaml:"leave_retry_every_s"`
	LeaveGraceS        float64 `yaml:"leave_grace_s"`
}

// DefaultParams returns the tuning used when no config overrides apply.
func DefaultParams() Params {
	return Params{
		HopTimeoutS:        120,
		SettleDelayS:       2,
		ReminderAfterS:     5,
		ReminderEveryS:     15,
		StalenessWindowS:   10,
		MaxRetries:         3,
		CrossContinentTTLS: 300,
		RecentHopTTLS:      60,
		DeclinedTTLS:       60,
		LeaveRetryEveryS:   10,
		LeaveGraceS:        30,
	}
}

// Sanitize clamps nonsensical values back to defaults so a bad config file
// cannot wedge the state machine.
func (p Params) Sanitize() Params {
	def := DefaultParams()
	if p.HopTimeoutS <= 0 {
		p.HopTimeoutS = def.HopTimeoutS
	}
	if p.SettleDelayS < 0 {
		p.SettleDelayS = def.SettleDelayS
	}
	if p.ReminderAfterS <= 0 {
		p.ReminderAfterS = def.ReminderAfterS
	}
	if p.ReminderEveryS <= 0 {
		p.ReminderEveryS = def.ReminderEveryS
	}
	if p.StalenessWindowS <= 0 {
		p.StalenessWindowS = def.StalenessWindowS
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.CrossContinentTTLS <= 0 {
		p.CrossContinentTTLS = def.CrossContinentTTLS
	}
	if p.RecentHopTTLS <= 0 {
		p.RecentHopTTLS = def.RecentHopTTLS
	}
	if p.DeclinedTTLS <= 0 {
		p.DeclinedTTLS = def.DeclinedTTLS
	}
	if p.LeaveRetryEveryS <= 0 {
		p.LeaveRetryEveryS = def.LeaveRetryEveryS
	}
	if p.LeaveGraceS <= 0 {
		p.LeaveGraceS = def.LeaveGraceS
	}
	return p
}
