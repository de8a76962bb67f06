package webhook

import (
	"testing"

	"github.com/mattjoyce/brickhost/internal/config"
)

func TestFromGlobalConfig(t *testing.T) {
	wc := &config.WebhooksConfig{
		Listen: "127.0.0.1:9001",
		Endpoints: []config.WebhookEndpoint{
			{Path: "/hooks/a", Secret: "x", SignatureHeader: "X-Sig", EventPrefix: "a.", MaxBodySize: "64KB"},
			{Path: "/hooks/b", Secret: "y"},
		},
	}

	cfg, err := FromGlobalConfig(wc)
	if err != nil {
		t.Fatalf("FromGlobalConfig() error = %v", err)
	}
	if cfg.Listen != "127.0.0.1:9001" || len(cfg.Endpoints) != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Endpoints[0].MaxBodySize != 64*1024 || cfg.Endpoints[0].EventPrefix != "a." {
		t.Errorf("endpoint a = %+v", cfg.Endpoints[0])
	}
	if cfg.Endpoints[1].MaxBodySize != DefaultMaxBodySize {
		t.Errorf("endpoint b MaxBodySize = %d", cfg.Endpoints[1].MaxBodySize)
	}

	wc.Endpoints[1].Secret = ""
	if _, err := FromGlobalConfig(wc); err == nil {
		t.Error("missing secret should fail")
	}

	wc.Endpoints[1].Secret = "y"
	wc.Endpoints[1].MaxBodySize = "huge"
	if _, err := FromGlobalConfig(wc); err == nil {
		t.Error("bad max_body_size should fail")
	}
}
