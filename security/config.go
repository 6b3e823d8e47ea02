package security

import (
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// LoadFromFlags builds an Engine from the --governance/--permissions/
// --identity-ca/--permissions-ca/--identity-cert flags core.AddFlags
// registers. It returns (nil, nil) when no governance document is
// configured: access control is opt-in, matching how most DDS deployments
// run without security enabled, and a participant with none configured
// simply admits every domain.
func LoadFromFlags(k *koanf.Koanf, logger zerolog.Logger) (*Engine, error) {
	governance := k.String("governance")
	if governance == "" {
		return nil, nil
	}
	return NewEngine(
		k.String("permissions-ca"),
		k.String("identity-cert"),
		governance,
		k.String("permissions"),
		logger,
	)
}
