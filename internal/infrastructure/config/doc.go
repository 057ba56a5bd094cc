// Package config loads and validates Hearth Core configuration.
//
// Configuration comes from a YAML file, with environment variables
// (HEARTH_ prefix) overriding individual values so secrets can stay
// out of the file. Load applies defaults, then overrides, then
// validates; a config that loads is safe to run with.
//
// The schedule document itself (rooms, rules, snippets) is a separate
// file owned by the schedule package. Config carries only its path and
// the startup behaviour flags.
//
// Broker passwords, InfluxDB tokens and the JWT secret belong in
// environment variables. When they do appear in the file, it should be
// chmod 0600. Validation refuses to start without a JWT secret of at
// least 32 characters.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Schedule.Path)
package config
