package process

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/permitdesk/permit-pipeline/internal/ai"
	"github.com/permitdesk/permit-pipeline/internal/permit"
)

type stubBackend struct {
	content string
	err     error
	calls   int
}

func (s *stubBackend) Complete(_ context.Context, _ ai.Request) (ai.Response, error) {
	s.calls++
	if s.err != nil {
		return ai.Response{}, s.err
	}
	return ai.Response{Content: s.content}, nil
}

func (s *stubBackend) Name() string { return "stub" }

func structuredResult() permit.ExtractedPermitData {
	return permit.ExtractedPermitData{
		Source:    permit.SourceStructured,
		SourceURL: "https://example.gov/permits",
		Permits: []permit.Type{
			{ID: "permit-1", Name: "Building Permit", Category: permit.CategoryBuilding},
		},
		Fees: []permit.Fee{
			{Type: "Building permit fee", Amount: 200, Unit: permit.UnitFlat},
		},
		Contact: permit.ContactInfo{Phone: "(555) 123-4567"},
	}
}

func TestNeedsSupplement(t *testing.T) {
	full := structuredResult()
	require.False(t, NeedsSupplement(full))

	noPermits := full
	noPermits.Permits = nil
	require.True(t, NeedsSupplement(noPermits))

	noFeesButTables := full
	noFeesButTables.Fees = nil
	noFeesButTables.TablesFound = 2
	require.True(t, NeedsSupplement(noFeesButTables))

	noFeesNoTables := full
	noFeesNoTables.Fees = nil
	require.False(t, NeedsSupplement(noFeesNoTables))

	noContact := full
	noContact.Contact = permit.ContactInfo{Address: "123 Main St"}
	require.True(t, NeedsSupplement(noContact))
}

func TestProcess_EmptyExtractionNoBackendReturnsDemo(t *testing.T) {
	p := New(nil, Config{}, zap.NewNop())

	empty := permit.ExtractedPermitData{
		Source:    permit.SourceStructured,
		SourceURL: "https://example.gov/permits",
	}
	got := p.Process(context.Background(), "<html></html>", empty)

	require.Equal(t, permit.SourceFallback, got.Source)
	require.Equal(t, "https://example.gov/permits", got.SourceURL)
	require.NotEmpty(t, got.Permits)
	require.NotEmpty(t, got.Fees)
	for _, pt := range got.Permits {
		require.Contains(t, pt.ID, "demo-")
	}
}

func TestProcess_SufficientDataSkipsBackend(t *testing.T) {
	backend := &stubBackend{content: `{}`}
	p := New(backend, Config{}, zap.NewNop())

	got := p.Process(context.Background(), "<html></html>", structuredResult())

	require.Zero(t, backend.calls)
	require.Equal(t, permit.SourceStructured, got.Source)
}

func TestProcess_BackendErrorDegradesToStructured(t *testing.T) {
	backend := &stubBackend{err: errors.New("rate limited")}
	p := New(backend, Config{}, zap.NewNop())

	thin := structuredResult()
	thin.Contact = permit.ContactInfo{}
	got := p.Process(context.Background(), "<html></html>", thin)

	require.Equal(t, 1, backend.calls)
	require.Equal(t, permit.SourceStructured, got.Source)
	require.Equal(t, thin.Permits, got.Permits)
	require.Equal(t, thin.Fees, got.Fees)
}

func TestProcess_SupplementFillsOnlyEmptyFields(t *testing.T) {
	backend := &stubBackend{content: "```json\n" + `{
		"permits": [{"name": "Sign Permit", "category": "sign"}],
		"fees": [{"type": "Sign fee", "amount": 40, "unit": "flat"}],
		"contact": {"email": "permits@town.gov"}
	}` + "\n```"}
	p := New(backend, Config{}, zap.NewNop())

	thin := structuredResult()
	thin.Permits = nil
	thin.Contact.Email = ""
	got := p.Process(context.Background(), "<html></html>", thin)

	require.Equal(t, 1, backend.calls)
	require.Equal(t, permit.SourceSupplemented, got.Source)
	require.Len(t, got.Permits, 1)
	require.Equal(t, "Sign Permit", got.Permits[0].Name)

	// Structured fees and phone survive untouched.
	require.Equal(t, thin.Fees, got.Fees)
	require.Equal(t, "(555) 123-4567", got.Contact.Phone)
	require.Equal(t, "permits@town.gov", got.Contact.Email)
}

func TestMerge_DoesNotOverwriteNonEmpty(t *testing.T) {
	data := structuredResult()
	s := Supplement{
		Permits: []SupplementPermit{{Name: "Fence Permit"}},
		Fees:    []SupplementFee{{Type: "Fence fee", Amount: 25}},
		Contact: SupplementContact{Phone: "(555) 999-9999", Email: "clerk@town.gov"},
	}

	got := Merge(data, s)

	require.Equal(t, data.Permits, got.Permits)
	require.Equal(t, data.Fees, got.Fees)
	require.Equal(t, "(555) 123-4567", got.Contact.Phone)
	// Email was empty, so it fills in and the result is marked supplemented.
	require.Equal(t, "clerk@town.gov", got.Contact.Email)
	require.Equal(t, permit.SourceSupplemented, got.Source)
}

func TestMerge_NothingFilledKeepsSource(t *testing.T) {
	data := structuredResult()
	data.Contact.Email = "permits@example.gov"
	data.Contact.Address = "1 Civic Plaza"
	data.Contact.Hours = "M-F 8-5"
	data.Processing.Times = map[string]string{"building": "2 weeks"}

	got := Merge(data, Supplement{
		Permits: []SupplementPermit{{Name: "Something"}},
		Contact: SupplementContact{Phone: "(555) 000-0000"},
	})

	require.Equal(t, permit.SourceStructured, got.Source)
}
