package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/permitdesk/permit-pipeline/internal/permit"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestFindTables_ClassifiesFeeTables(t *testing.T) {
	t.Parallel()
	html := `
	<table>
	  <tr><th>Permit Type</th><th>Fee</th></tr>
	  <tr><td>Electrical Permit</td><td>$75.00</td></tr>
	</table>
	<table>
	  <tr><th>Department</th><th>Location</th></tr>
	  <tr><td>Planning</td><td>Room 210</td></tr>
	</table>`

	tables := FindTables(doc(t, html))
	require.Len(t, tables, 2)
	require.Equal(t, TableFee, tables[0].Kind)
	require.Equal(t, TableGeneric, tables[1].Kind)
}

func TestFeesFromTables_ElectricalPermitRow(t *testing.T) {
	t.Parallel()
	html := `
	<table>
	  <tr><th>Permit Type</th><th>Fee</th></tr>
	  <tr><td>Electrical Permit</td><td>$75.00</td></tr>
	  <tr><td>Plumbing Permit</td><td>$1,250.50</td></tr>
	</table>`

	fees := FeesFromTables(FindTables(doc(t, html)))
	require.Len(t, fees, 2)
	require.Contains(t, fees[0].Type, "Electrical")
	require.Equal(t, 75.00, fees[0].Amount)
	require.Equal(t, permit.UnitFlat, fees[0].Unit)
	require.Equal(t, 1250.50, fees[1].Amount)
}

func TestFees_UnitQualifier(t *testing.T) {
	t.Parallel()
	html := `
	<table>
	  <tr><th>Item</th><th>Cost</th><th>Notes</th></tr>
	  <tr><td>New construction</td><td>$0.25</td><td>per sq ft of floor area</td></tr>
	</table>`

	fees := FeesFromTables(FindTables(doc(t, html)))
	require.Len(t, fees, 1)
	require.Equal(t, permit.UnitPerSqFt, fees[0].Unit)
	require.Equal(t, 0.25, fees[0].Amount)
}

func TestInlineFees(t *testing.T) {
	t.Parallel()
	text := "Apply today.\nPlan review fee: $120.00\nSign permit - $45\nCall us."
	fees := InlineFees(text)
	require.Len(t, fees, 2)
	require.Contains(t, fees[0].Type, "Plan review")
	require.Equal(t, 120.00, fees[0].Amount)
	require.Equal(t, 45.0, fees[1].Amount)
}

func TestExtractContact(t *testing.T) {
	t.Parallel()
	html := `<div>
	  <p>Building Division, 123 Main Street, Suite 4, Springfield, IL 62701</p>
	  <p>Phone: (217) 555-0134</p>
	  <p>Email: <a href="mailto:permits@springfield.gov">permits@springfield.gov</a></p>
	  <p>Hours: Monday - Friday: 8:00 AM - 5:00 PM</p>
	</div>`

	c := ExtractContact(doc(t, html))
	require.Equal(t, "(217) 555-0134", c.Phone)
	require.Equal(t, "permits@springfield.gov", c.Email)
	require.Contains(t, c.Address, "123 Main Street")
	require.Contains(t, strings.ToLower(c.Hours), "monday")
	require.True(t, c.HasAny())
}

func TestExtractContact_PrefersPermitMailbox(t *testing.T) {
	t.Parallel()
	html := `<p>webmaster@springfield.gov for site issues, building@springfield.gov for permits</p>`
	c := ExtractContact(doc(t, html))
	require.Equal(t, "building@springfield.gov", c.Email)
}

func TestExtractRequirements(t *testing.T) {
	t.Parallel()
	html := `
	<h2>Required Documents</h2>
	<ul>
	  <li>Two copies of the site plan drawn to scale</li>
	  <li>Completed application form signed by the owner</li>
	  <li>PDF</li>
	</ul>
	<h2>Unrelated</h2>
	<ul><li>Something else entirely here</li></ul>`

	reqs := ExtractRequirements(doc(t, html))
	require.Len(t, reqs, 2)
	require.Contains(t, reqs[0], "site plan")
	// Items below the length threshold are noise.
	for _, r := range reqs {
		require.GreaterOrEqual(t, len(r), minRequirementLen)
	}
}

func TestExtractForms(t *testing.T) {
	t.Parallel()
	html := `
	<form name="permit-application" action="/apply">
	  <label for="owner">Owner Name *</label>
	  <input id="owner" name="owner" type="text" />
	  <input name="email" type="email" required />
	  <input name="phone" type="tel" />
	  <input name="start_date" type="date" />
	  <input name="valuation" type="number" />
	  <input name="agree" type="checkbox" />
	  <textarea name="description"></textarea>
	  <input type="submit" value="Go" />
	</form>`

	forms := ExtractForms(doc(t, html), "https://springfield.gov/permits")
	require.Len(t, forms, 1)
	f := forms[0]
	require.Equal(t, "permit-application", f.Name)
	require.Equal(t, "https://springfield.gov/apply", f.URL)
	require.Len(t, f.Fields, 7)

	byName := map[string]permit.FormField{}
	for _, fld := range f.Fields {
		byName[fld.Name] = fld
	}
	require.Equal(t, "text", byName["owner"].Type)
	require.True(t, byName["owner"].Required, "asterisk in label marks required")
	require.Equal(t, "email", byName["email"].Type)
	require.True(t, byName["email"].Required)
	require.Equal(t, "phone", byName["phone"].Type)
	require.Equal(t, "date", byName["start_date"].Type)
	require.Equal(t, "number", byName["valuation"].Type)
	require.Equal(t, "checkbox", byName["agree"].Type)
	require.Equal(t, "textarea", byName["description"].Type)
}

func TestExtractProcessingTimes(t *testing.T) {
	t.Parallel()
	text := "Building permit: 5-10 business days. Electrical permit: 2 weeks."
	info := ExtractProcessingTimes(text)
	require.Len(t, info.Times, 2)
	require.Equal(t, "5-10 business days", info.Times["building permit"])
	require.Equal(t, "2 weeks", info.Times["electrical permit"])
}

func TestCategorizePermitName(t *testing.T) {
	t.Parallel()
	require.Equal(t, permit.CategoryElectrical, CategorizePermitName("Electrical Permit"))
	require.Equal(t, permit.CategoryPlumbing, CategorizePermitName("Residential Plumbing"))
	require.Equal(t, permit.CategoryZoning, CategorizePermitName("Zoning Variance Permit"))
	require.Equal(t, permit.CategoryOther, CategorizePermitName("Food Truck Permit"))
}

func TestExtract_EndToEndIndependentHeuristics(t *testing.T) {
	t.Parallel()
	// No tables and no forms; the other heuristics still run.
	html := `
	<h1>Demolition Permit</h1>
	<p>Demolition permit: 3 weeks</p>
	<p>Call (555) 867-5309 or permits@town.gov</p>`

	data, err := New(nil).Extract(html, "https://town.gov")
	require.NoError(t, err)
	require.Equal(t, permit.SourceStructured, data.Source)
	require.Zero(t, data.TablesFound)
	require.Empty(t, data.Forms)
	require.NotEmpty(t, data.Permits)
	require.Equal(t, permit.CategoryDemolition, data.Permits[0].Category)
	require.Equal(t, "(555) 867-5309", data.Contact.Phone)
	require.Equal(t, "permits@town.gov", data.Contact.Email)
	require.NotEmpty(t, data.Processing.Times)
}

func TestFindPortalURL(t *testing.T) {
	t.Parallel()
	html := `<a href="https://aca.accela.com/springfield">Apply Online</a>`
	require.Equal(t, "https://aca.accela.com/springfield", FindPortalURL(doc(t, html), "https://springfield.gov"))
}
