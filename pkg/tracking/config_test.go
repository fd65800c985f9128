package tracking

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DetectionInterval != 30 {
		t.Errorf("Expected DetectionInterval=30, got %d", cfg.DetectionInterval)
	}
	if cfg.HysteresisMargin != 0.1 {
		t.Errorf("Expected HysteresisMargin=0.1, got %v", cfg.HysteresisMargin)
	}
	if cfg.TrackerKind != TrackerKCF {
		t.Errorf("Expected KCF tracker, got %q", cfg.TrackerKind)
	}
	if cfg.DrawFlags != DrawAll {
		t.Errorf("Expected all draw flags, got %06b", cfg.DrawFlags)
	}
	if cfg.DropLostEntities || cfg.InheritStateIoU != 0 || cfg.LegacyRightAxis {
		t.Error("optional behaviours should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.DetectionInterval = 0 }},
		{"negative margin", func(c *Config) { c.HysteresisMargin = -0.1 }},
		{"margin past center", func(c *Config) { c.HysteresisMargin = 0.5 }},
		{"unknown direction", func(c *Config) { c.EntryDirection = Direction(7) }},
		{"unknown tracker", func(c *Config) { c.TrackerKind = "boosting" }},
		{"iou above one", func(c *Config) { c.InheritStateIoU = 1.5 }},
		{"unknown draw bits", func(c *Config) { c.DrawFlags = 1 << 7 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDrawFlags_Has(t *testing.T) {
	f := DrawBoundingBoxes | ShowStates

	if !f.Has(DrawBoundingBoxes) || !f.Has(ShowStates) {
		t.Error("set flags not reported")
	}
	if f.Has(DrawCentroids) {
		t.Error("unset flag reported")
	}
	if f.Has(DrawBoundingBoxes | DrawCentroids) {
		t.Error("Has should require every bit")
	}
	if !DrawAll.Has(ShowFrameStatus) {
		t.Error("DrawAll should include ShowFrameStatus")
	}
}

func TestConfig_Boundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EntryDirection = DirectionRight
	cfg.HysteresisMargin = 0.2
	cfg.LegacyRightAxis = true

	b := cfg.Boundary()
	if b.Direction != DirectionRight || b.Margin != 0.2 || !b.LegacyRightAxis {
		t.Errorf("got %+v", b)
	}
}
