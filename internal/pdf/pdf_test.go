package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/matsen/bibshelf/internal/liberr"
)

// buildPDF assembles a one-page PDF with the given info dictionary body and
// an optional XMP packet, computing xref offsets.
func buildPDF(t *testing.T, info, xmp string) []byte {
	t.Helper()
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	catalog := "<< /Type /Catalog /Pages 2 0 R"
	if xmp != "" {
		catalog += " /Metadata 4 0 R"
	}
	obj(catalog + " >>")
	obj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	obj(fmt.Sprintf("<< /Type /Metadata /Subtype /XML /Length %d >>\nstream\n%s\nendstream", len(xmp), xmp))
	obj("<< " + info + " >>")

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R /Info 5 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

const samplePacket = `<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="" xmlns:dc="http://purl.org/dc/elements/1.1/"
      xmlns:pdf="http://ns.adobe.com/pdf/1.3/" pdf:Keywords="a; b">
   <dc:title><rdf:Alt><rdf:li xml:lang="x-default">Real Title</rdf:li></rdf:Alt></dc:title>
   <dc:creator><rdf:Seq><rdf:li>Lovelace, Ada</rdf:li><rdf:li>Charles Babbage</rdf:li></rdf:Seq></dc:creator>
   <dc:subject><rdf:Bag><rdf:li>engines</rdf:li></rdf:Bag></dc:subject>
  </rdf:Description>
  <rdf:Description rdf:about="" xmlns:prism="http://prismstandard.org/namespaces/basic/2.0/">
   <prism:doi>10.5555/xmp.doi</prism:doi>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

func TestExtractReader_InfoDictionary(t *testing.T) {
	data := buildPDF(t,
		"/Title (Deep Learning for Oceans) /Author (Ada Lovelace; Charles Babbage) "+
			"/Subject (Nature 2020, doi:10.1038/s41586-020-1234-5) /Keywords (oceans, learning)", "")

	m, err := ExtractReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ExtractReader() error = %v", err)
	}
	if m.Title != "Deep Learning for Oceans" {
		t.Errorf("Title = %q, want %q", m.Title, "Deep Learning for Oceans")
	}
	if diff := cmp.Diff([]string{"Lovelace", "Babbage"}, m.LastNames); diff != "" {
		t.Errorf("LastNames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"oceans", "learning"}, m.Keywords); diff != "" {
		t.Errorf("Keywords mismatch (-want +got):\n%s", diff)
	}
	if m.DOI != "10.1038/s41586-020-1234-5" {
		t.Errorf("DOI = %q, want 10.1038/s41586-020-1234-5", m.DOI)
	}
	if m.Extra["subject"] == "" {
		t.Error("subject should be kept in Extra")
	}
}

func TestExtractReader_XMPWins(t *testing.T) {
	data := buildPDF(t, "/Title (Microsoft Word - draft.docx) /Author (nobody)", samplePacket)

	m, err := ExtractReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ExtractReader() error = %v", err)
	}
	if m.Title != "Real Title" {
		t.Errorf("Title = %q, want Real Title", m.Title)
	}
	if diff := cmp.Diff([]string{"Ada", "Charles"}, m.FirstNames); diff != "" {
		t.Errorf("FirstNames mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"engines", "a", "b"}, m.Keywords); diff != "" {
		t.Errorf("Keywords mismatch (-want +got):\n%s", diff)
	}
	if m.DOI != "10.5555/xmp.doi" {
		t.Errorf("DOI = %q, want 10.5555/xmp.doi", m.DOI)
	}
}

func TestExtractReader_PlaceholderTitle(t *testing.T) {
	data := buildPDF(t, "/Title (Microsoft Word - draft.docx)", "")
	m, err := ExtractReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("ExtractReader() error = %v", err)
	}
	if m.Title != "" || m.DOI != "" {
		t.Errorf("got title %q doi %q, want both empty", m.Title, m.DOI)
	}
}

func TestExtract_Errors(t *testing.T) {
	if _, err := ExtractReader(bytes.NewReader([]byte("not a pdf")), 9); !errors.Is(err, liberr.ErrParse) {
		t.Errorf("ExtractReader(junk) error = %v, want ErrParse", err)
	}
	missing := filepath.Join(t.TempDir(), "missing.pdf")
	if _, err := Extract(missing); !errors.Is(err, liberr.ErrNotFound) {
		t.Errorf("Extract(missing) error = %v, want ErrNotFound", err)
	}
}

func TestParseXMP(t *testing.T) {
	info, err := parseXMP([]byte(samplePacket))
	if err != nil {
		t.Fatalf("parseXMP() error = %v", err)
	}
	want := Info{
		Title:    "Real Title",
		Authors:  []string{"Lovelace, Ada", "Charles Babbage"},
		Keywords: []string{"engines", "a", "b"},
		DOI:      "10.5555/xmp.doi",
	}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("parseXMP() mismatch (-want +got):\n%s", diff)
	}
}

func TestMostFrequentDOI(t *testing.T) {
	tests := []struct {
		text, want string
	}{
		{"no identifiers here", ""},
		{"see 10.1000/abc. and 10.2000/xyz, also 10.2000/xyz", "10.2000/xyz"},
		{"https://doi.org/10.1103/PhysRevLett.1.1)", "10.1103/PhysRevLett.1.1"},
		{"10.0123/leading-zero is not a registrant", ""},
	}
	for _, tt := range tests {
		if got := mostFrequentDOI(tt.text); got != tt.want {
			t.Errorf("mostFrequentDOI(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestSplitAuthors(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Ada Lovelace and Charles Babbage", []string{"Ada Lovelace", "Charles Babbage"}},
		{"Lovelace, Ada", []string{"Lovelace, Ada"}},
		{"Smith, Jones, Brown", []string{"Smith", "Jones", "Brown"}},
		{"A. One; B. Two & C. Three", []string{"A. One", "B. Two", "C. Three"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, splitAuthors(tt.in)); diff != "" {
			t.Errorf("splitAuthors(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestGuessTitle(t *testing.T) {
	text := "Journal of Applied Things, Volume 3\nshort\nA Sufficiently Long Title For Tests\n"
	if got := guessTitle(text); got != "A Sufficiently Long Title For Tests" {
		t.Errorf("guessTitle() = %q", got)
	}
}

func TestOpenerCommand(t *testing.T) {
	tests := []struct {
		reader, goos string
		want         []string
	}{
		{"zathura", "linux", []string{"zathura", "/x.pdf"}},
		{"system", "linux", []string{"xdg-open", "/x.pdf"}},
		{"skim", "darwin", []string{"open", "-a", "Skim", "/x.pdf"}},
		{"", "darwin", []string{"open", "/x.pdf"}},
	}
	for _, tt := range tests {
		o := NewOpener(tt.reader)
		o.goos = tt.goos
		cmd, err := o.Command("/x.pdf")
		if err != nil {
			t.Fatalf("Command() error = %v", err)
		}
		if diff := cmp.Diff(tt.want, cmd.Args); diff != "" {
			t.Errorf("Command(%s on %s) mismatch (-want +got):\n%s", tt.reader, tt.goos, diff)
		}
	}

	o := NewOpener("")
	o.goos = "plan9"
	if _, err := o.Command("/x.pdf"); err == nil {
		t.Error("Command() on an unsupported platform should fail")
	}
}
