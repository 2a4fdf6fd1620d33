package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/simlive/internal/domain"
)

func TestCoerceStatus(t *testing.T) {
	tests := map[string]struct {
		in   any
		want domain.ChecklistStatus
	}{
		"canonical ok":          {in: "ok", want: domain.StatusOK},
		"canonical wrong":       {in: "wrong", want: domain.StatusWrong},
		"canonical missed":      {in: domain.StatusMissed, want: domain.StatusMissed},
		"slash na":              {in: "N/A", want: domain.StatusNA},
		"bool true":             {in: true, want: domain.StatusOK},
		"bool false":            {in: false, want: domain.StatusMissed},
		"numeric string one":    {in: "1", want: domain.StatusOK},
		"numeric string zero":   {in: "0", want: domain.StatusMissed},
		"string true":           {in: "true", want: domain.StatusOK},
		"int one":               {in: 1, want: domain.StatusOK},
		"float zero":            {in: float64(0), want: domain.StatusMissed},
		"unknown number":        {in: 7, want: domain.StatusNA},
		"unknown string":        {in: "maybe", want: domain.StatusNA},
		"nil":                   {in: nil, want: domain.StatusNA},
		"invalid typed status":  {in: domain.ChecklistStatus("TRUE"), want: domain.StatusOK},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.CoerceStatus(tt.in))
		})
	}
}

func TestElapsed(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	now := t0.Add(90 * time.Second)
	end := t0.Add(30 * time.Second)
	before := t0.Add(-time.Minute)

	assert.Equal(t, time.Duration(0), domain.Elapsed(now, nil, nil), "not started")
	assert.Equal(t, 90*time.Second, domain.Elapsed(now, &t0, nil), "running")
	assert.Equal(t, 30*time.Second, domain.Elapsed(now, &t0, &end), "ended freezes the timer")
	assert.Equal(t, time.Duration(0), domain.Elapsed(before, &t0, nil), "clock behind start")
}

func TestFingerprint_Sum(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	base := domain.Fingerprint{Banner: "b", PhaseID: "p1", StartedAt: &t0, Revision: 3}

	same := base
	local := t0.In(time.FixedZone("X", 3600))
	same.StartedAt = &local
	assert.Equal(t, base.Sum(), same.Sum(), "time zone must not change the sum")

	for name, f := range map[string]func(*domain.Fingerprint){
		"banner":   func(f *domain.Fingerprint) { f.Banner = "c" },
		"phase":    func(f *domain.Fingerprint) { f.PhaseID = "p2" },
		"ended":    func(f *domain.Fingerprint) { f.EndedAt = &t0 },
		"action":   func(f *domain.Fingerprint) { f.LatestActionAt = &t0 },
		"revision": func(f *domain.Fingerprint) { f.Revision++ },
	} {
		changed := base
		f(&changed)
		assert.NotEqual(t, base.Sum(), changed.Sum(), name)
	}
}

func TestDecodeEvent(t *testing.T) {
	v := "160"
	in := domain.EventVariableChanged{
		EventMeta: domain.EventMeta{SessionID: "s1", Revision: 7},
		Revealed:  true,
		Variable:  domain.VariableView{ID: "hr", Label: "HR", Value: &v},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := domain.DecodeEvent(domain.Notification{Event: in.Name(), SessionID: "s1", Revision: 7, Data: data})
	require.NoError(t, err)
	require.Equal(t, &in, out)

	_, err = domain.DecodeEvent(domain.Notification{Event: "nope", Data: data})
	require.Error(t, err)
}
