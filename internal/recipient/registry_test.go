package recipient

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/foxzi/blastry/internal/apperr"
	"github.com/foxzi/blastry/internal/phone"
	"github.com/foxzi/blastry/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r, err := Open(context.Background(), st, "user-1", "event-1", phone.Default, language.Hebrew, logger)
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestAddManualValidation(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddManual(ctx, "", "0521234567"); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("empty name accepted: %v", err)
	}
	if _, err := r.AddManual(ctx, "Dana", "  "); !apperr.Is(err, apperr.KindInvalidInput) {
		t.Errorf("empty phone accepted: %v", err)
	}

	p, err := r.AddManual(ctx, "Dana", "052-123-4567")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if p.Phone != "972521234567" {
		t.Errorf("phone not normalized: %q", p.Phone)
	}
	if p.Source != SourceManual {
		t.Errorf("unexpected source %q", p.Source)
	}

	// Manual add does not dedupe.
	if _, err := r.AddManual(ctx, "Dana Again", "0521234567"); err != nil {
		t.Fatalf("duplicate manual add rejected: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 recipients, got %d", r.Len())
	}
}

func TestBulkImportDedupe(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.AddManual(ctx, "Existing", "0521234567"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	added, err := r.BulkImport(ctx, []Row{
		{Name: "Existing Other Format", Phone: "972521234567"}, // dupe of seeded
		{Name: "Fresh", Phone: "0529999999"},
		{Name: "Fresh Again", Phone: "529999999"}, // dupe within batch
		{Name: "", Phone: "0521111111"},           // empty name
		{Name: "No Phone", Phone: ""},
	})
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if added != 1 {
		t.Errorf("expected 1 added, got %d", added)
	}
	if r.Len() != 2 {
		t.Errorf("expected 2 recipients total, got %d", r.Len())
	}
}

func TestListOrdering(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for i, name := range []string{"גלית", "אבי", "בני"} {
		if _, err := r.AddManual(ctx, name, "05299999"+string(rune('0'+i))+"0"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	list := r.List()
	got := make([]string, len(list))
	for i, p := range list {
		got[i] = p.Name
	}
	want := []string{"אבי", "בני", "גלית"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v, want %v", got, want)
		}
	}
}

func TestParseCSVAliases(t *testing.T) {
	in := "Name,Phone,extra\nDana,0521234567,x\nOmri,0500000000,y\n"
	rows, err := ParseCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Name != "Dana" || rows[0].Phone != "0521234567" {
		t.Errorf("unexpected row: %+v", rows[0])
	}

	// Hebrew header aliases.
	in = "שם,טלפון\nדנה,0521234567\n"
	rows, err = ParseCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse failed for hebrew header: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "דנה" {
		t.Errorf("unexpected rows: %+v", rows)
	}

	// Unmappable header is rejected.
	if _, err := ParseCSV(strings.NewReader("a,b\n1,2\n")); err == nil {
		t.Error("expected error for unmappable header")
	}
}

func TestParseCSVStripsByteOrderMark(t *testing.T) {
	// Excel exports prefix the first header cell with a UTF-8 BOM.
	in := "\ufeffname,phone\nDana,0521234567\n"
	rows, err := ParseCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse failed for BOM header: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Dana" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestWriteTemplateCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTemplateCSV(&buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 example rows, got %d lines", len(lines))
	}
	if lines[0] != "name,phone" {
		t.Errorf("unexpected header %q", lines[0])
	}

	// The template must round-trip through our own parser.
	rows, err := ParseCSV(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("template does not round-trip: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 example rows, got %d", len(rows))
	}
}
