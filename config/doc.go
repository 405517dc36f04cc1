// Package config loads engine settings from a YAML or JSON file.
//
// A file only names the settings it changes, everything else keeps the
// client defaults:
//
//	pool_size: 10
//	timeout: 30s
//	follow_redirects: true
//	max_redirects: 3
//	proxy: http://proxy.internal:3128
//	verify_tls: true
//	impersonate:
//	  target: chrome110
//	  default_headers: true
//	cookies: true
//	throttle:
//	  rps: 20
//	  burst: 5
//	log_level: debug
//
// Durations are Go duration strings ("1m30s") or integer seconds.
//
//	cfg, err := config.LoadConfig("engine.yaml")
//	if err != nil {
//		return err
//	}
//	c, err := client.Build(cfg.Options()...)
package config
