package jsontime

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Duration(1500 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"1.5s"` {
		t.Errorf("marshal=%s", data)
	}

	tests := []struct {
		in   string
		want time.Duration
	}{
		{`"10s"`, 10 * time.Second},
		{`"250ms"`, 250 * time.Millisecond},
		{`1000000`, time.Millisecond},
	}
	for _, tt := range tests {
		var d Duration
		if err := json.Unmarshal([]byte(tt.in), &d); err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if d.Std() != tt.want {
			t.Errorf("%s: got=%v want=%v", tt.in, d, tt.want)
		}
	}

	var d Duration
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Error("expected error for bad duration")
	}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil || d != 0 {
		t.Errorf("null: d=%v err=%v", d, err)
	}
}

func TestDurationYAML(t *testing.T) {
	var cfg struct {
		Timeout Duration `yaml:"timeout"`
		Grace   Duration `yaml:"grace"`
	}
	if err := yaml.Unmarshal([]byte("timeout: 5s\ngrace: 2000000\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout.Std() != 5*time.Second || cfg.Grace.Std() != 2*time.Millisecond {
		t.Errorf("got timeout=%v grace=%v", cfg.Timeout, cfg.Grace)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "timeout: 5s\ngrace: 2ms\n" {
		t.Errorf("marshal=%q", out)
	}
}
