package pdf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/permitdesk/permit-pipeline/internal/fetch"
)

const samplePermitForm = `
CITY OF SPRINGFIELD BUILDING DEPARTMENT
RESIDENTIAL BUILDING PERMIT APPLICATION

Owner Name: ____________________
Email Address: ____________________
Phone Number ____________________
Project Start Date: ____________________
Estimated Project Value: ____________________

Project type:
[ ] New construction
[X] Addition
[ ] Repair or replacement

STEP 1: Complete all sections of this application.
STEP 2: Attach two copies of the site plan.
STEP 3: Submit payment at the counter.

Application fee: $150.00
Plan review charge: $85.50

Required submittals:
- Two copies of the construction drawings
- Proof of contractor license
- o Completed energy compliance worksheet

Building Department
Phone: (217) 555-0100
permits@springfield.gov
Monday - Friday: 8:00 AM - 4:30 PM

Public Works
(217) 555-0177

Applicant Signature: ____________________ Date: ________
`

func TestAnalyzeText_FormFields(t *testing.T) {
	t.Parallel()
	result := AnalyzeText(samplePermitForm)

	labels := map[string]string{}
	for _, f := range result.FormFields {
		labels[f.Label] = f.Type
	}
	require.Equal(t, "text", labels["Owner Name"])
	require.Equal(t, "email", labels["Email Address"])
	require.Equal(t, "phone", labels["Phone Number"])
	require.Equal(t, "date", labels["Project Start Date"])
	require.Equal(t, "number", labels["Estimated Project Value"])
}

func TestAnalyzeText_Checkboxes(t *testing.T) {
	t.Parallel()
	result := AnalyzeText(samplePermitForm)
	require.Len(t, result.Checkboxes, 3)
	require.Equal(t, "New construction", result.Checkboxes[0].Label)
	require.False(t, result.Checkboxes[0].Checked)
	require.True(t, result.Checkboxes[1].Checked)
}

func TestAnalyzeText_Steps(t *testing.T) {
	t.Parallel()
	result := AnalyzeText(samplePermitForm)
	require.GreaterOrEqual(t, len(result.Steps), 3)
	require.Equal(t, 1, result.Steps[0].Number)
	require.Contains(t, result.Steps[0].Text, "Complete all sections")
	require.Equal(t, 2, result.Steps[1].Number)
}

func TestAnalyzeText_Fees(t *testing.T) {
	t.Parallel()
	result := AnalyzeText(samplePermitForm)
	require.GreaterOrEqual(t, len(result.Fees), 2)

	amounts := map[float64]bool{}
	for _, f := range result.Fees {
		amounts[f.Amount] = true
	}
	require.True(t, amounts[150.00])
	require.True(t, amounts[85.50])
}

func TestAnalyzeText_ContactsWithDepartments(t *testing.T) {
	t.Parallel()
	result := AnalyzeText(samplePermitForm)
	require.GreaterOrEqual(t, len(result.Contacts), 2)

	byDept := map[string]Contact{}
	for _, c := range result.Contacts {
		byDept[c.Department] = c
	}
	building := byDept["Building"]
	require.Equal(t, "(217) 555-0100", building.Phone)
	require.Equal(t, "permits@springfield.gov", building.Email)
	require.NotEmpty(t, building.Hours)

	works := byDept["Public Works"]
	require.Equal(t, "(217) 555-0177", works.Phone)
}

func TestAnalyzeText_RequirementsAndSignatures(t *testing.T) {
	t.Parallel()
	result := AnalyzeText(samplePermitForm)
	require.GreaterOrEqual(t, len(result.Requirements), 2)
	require.Contains(t, result.Requirements[0], "construction drawings")
	require.NotEmpty(t, result.Signatures)
	require.Contains(t, result.Signatures[0], "Signature")
}

func TestAnalyzeText_EmptyInput(t *testing.T) {
	t.Parallel()
	result := AnalyzeText("")
	require.Empty(t, result.FormFields)
	require.Empty(t, result.Fees)
	require.Empty(t, result.Contacts)
	require.Empty(t, result.FillableFields)
}

func TestAnalyzer_DownloadErrorSurfaces(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	executor := fetch.NewExecutor(fetch.RetryConfig{
		MaxRetries:     1,
		AttemptTimeout: time.Second,
		BaseDelay:      time.Millisecond,
	}, nil)
	a := New(executor, Config{}, nil)

	_, err := a.Analyze(context.Background(), srv.URL+"/missing.pdf")
	require.Error(t, err)
}
