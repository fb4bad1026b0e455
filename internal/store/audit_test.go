package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/dualmind"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/immunity"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/sacred"
)

func newTestStore(t *testing.T) *AuditStore {
	t.Helper()
	s, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndQueryAttacks(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Minute)
	for i, typ := range []immunity.AttackType{
		immunity.PromptInjection,
		immunity.LiarParadox,
		immunity.ShadowSelf,
	} {
		err := s.RecordAttack(immunity.AttackEvent{
			Record: immunity.AttackRecord{
				ID:         "",
				Input:      "payload",
				Type:       typ,
				Confidence: 0.9,
				Timestamp:  base.Add(time.Duration(i) * time.Second),
			},
			MatchedPattern: "pattern",
		})
		require.NoError(t, err)
	}

	rows, err := s.RecentAttacks(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, string(immunity.ShadowSelf), rows[0].AttackType, "newest row first")
	require.NotEmpty(t, rows[0].ID, "store should assign an id when the record lacks one")
}

func TestRecordVerification(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordVerification(dualmind.VerificationResult{
		Approved:            false,
		Confidence:          0.2,
		RequiresHumanReview: true,
		MainThought:         dualmind.VerdictApprove,
		AuditThought:        dualmind.VerdictDisagree,
		Divergence:          &dualmind.Divergence{Diverged: true, Score: 1.0},
		Timestamp:           time.Now(),
	})
	if err != nil {
		t.Fatalf("record verification: %v", err)
	}

	// Nil divergence must also persist cleanly.
	err = s.RecordVerification(dualmind.VerificationResult{
		Approved:   true,
		Confidence: 0.9,
		Timestamp:  time.Now(),
	})
	if err != nil {
		t.Fatalf("record verification without divergence: %v", err)
	}
}

func TestTamperCount(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 4; i++ {
		err := s.RecordTamper(sacred.TamperEvent{
			Reason:    "registration after seal",
			Attempts:  i,
			Timestamp: time.Now(),
		})
		require.NoError(t, err)
	}

	count, err := s.CountTamperEvents()
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestRecordExecution(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordExecution(sacred.ExecutionEntry{
		Function:  "processUserInput",
		OK:        false,
		Error:     "blocked",
		Duration:  3 * time.Millisecond,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("record execution: %v", err)
	}
}
