// Package config loads service configuration from environment variables
// using envconfig.
//
// Every field has a default, so an empty environment yields a runnable
// configuration. The warm process cache capacity is not here: it is a
// persisted system parameter (see package sysparam) so it can change at
// runtime.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
