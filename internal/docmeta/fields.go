package docmeta

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Field keys. List-valued keys carry the "_l" suffix.
const (
	FieldType        = "type"
	FieldTitle       = "title"
	FieldAbstract    = "abstract"
	FieldPublication = "publication"
	FieldPublisher   = "publisher"
	FieldCity        = "city"
	FieldCountry     = "country"
	FieldEdition     = "edition"
	FieldInstitution = "institution"
	FieldSeries      = "series"
	FieldChapter     = "chapter"
	FieldCitationKey = "citationkey"
	FieldDOI         = "doi"
	FieldISBN        = "isbn"
	FieldISSN        = "issn"
	FieldArxivID     = "arxivId"
	FieldPMID        = "pmid"
	FieldLanguage    = "language"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldDay         = "day"
	FieldVolume      = "volume"
	FieldIssue       = "issue"
	FieldPages       = "pages"
	FieldNotes       = "notes"

	FieldFirstNames = "firstNames_l"
	FieldLastNames  = "lastName_l"
	FieldAuthors    = "authors_l"
	FieldKeywords   = "keywords_l"
	FieldTags       = "tags_l"
	FieldURLs       = "urls_l"
	FieldFiles      = "files_l"
	FieldFolders    = "folders_l"

	FieldAdded      = "added"
	FieldLastUpdate = "lastUpdate"

	FieldFavourite       = "favourite"
	FieldRead            = "read"
	FieldConfirmed       = "confirmed"
	FieldDeletionPending = "deletionPending"
)

// Kind classifies how a field is assigned.
type Kind int

const (
	KindScalar Kind = iota // free-form string
	KindList               // ordered sequence or set of strings
	KindFlag               // boolean
	KindTime               // unix seconds
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindFlag:
		return "flag"
	case KindTime:
		return "time"
	}
	return "unknown"
}

var (
	// ErrFieldKind is returned when a value of the wrong kind is assigned.
	ErrFieldKind = errors.New("field kind mismatch")

	// ErrReadOnly is returned when assigning a field the library maintains.
	ErrReadOnly = errors.New("field is read-only")

	// ErrNameArity is returned when firstNames and lastNames differ in length.
	ErrNameArity = errors.New("first and last name lists differ in length")
)

type field struct {
	key      string
	kind     Kind
	set      bool // list whose order is not significant
	readOnly bool
	getStr   func(*Meta) string
	setStr   func(*Meta, string)
	list     func(*Meta) *[]string
	flag     func(*Meta) *bool
	time     func(*Meta) *int64
}

func scalar(key string, p func(*Meta) *string) field {
	return field{
		key:    key,
		kind:   KindScalar,
		getStr: func(m *Meta) string { return *p(m) },
		setStr: func(m *Meta, v string) { *p(m) = v },
	}
}

func list(key string, set bool, p func(*Meta) *[]string) field {
	return field{key: key, kind: KindList, set: set, list: p}
}

func flag(key string, p func(*Meta) *bool) field {
	return field{key: key, kind: KindFlag, flag: p}
}

func stamp(key string, p func(*Meta) *int64) field {
	return field{key: key, kind: KindTime, time: p}
}

var registry = []field{
	{
		key:    FieldType,
		kind:   KindScalar,
		getStr: func(m *Meta) string { return string(m.Type) },
		setStr: func(m *Meta, v string) { m.Type = ParseType(v) },
	},
	scalar(FieldTitle, func(m *Meta) *string { return &m.Title }),
	scalar(FieldAbstract, func(m *Meta) *string { return &m.Abstract }),
	scalar(FieldPublication, func(m *Meta) *string { return &m.Publication }),
	scalar(FieldPublisher, func(m *Meta) *string { return &m.Publisher }),
	scalar(FieldCity, func(m *Meta) *string { return &m.City }),
	scalar(FieldCountry, func(m *Meta) *string { return &m.Country }),
	scalar(FieldEdition, func(m *Meta) *string { return &m.Edition }),
	scalar(FieldInstitution, func(m *Meta) *string { return &m.Institution }),
	scalar(FieldSeries, func(m *Meta) *string { return &m.Series }),
	scalar(FieldChapter, func(m *Meta) *string { return &m.Chapter }),
	scalar(FieldCitationKey, func(m *Meta) *string { return &m.CitationKey }),
	scalar(FieldDOI, func(m *Meta) *string { return &m.DOI }),
	scalar(FieldISBN, func(m *Meta) *string { return &m.ISBN }),
	scalar(FieldISSN, func(m *Meta) *string { return &m.ISSN }),
	scalar(FieldArxivID, func(m *Meta) *string { return &m.ArxivID }),
	scalar(FieldPMID, func(m *Meta) *string { return &m.PMID }),
	scalar(FieldLanguage, func(m *Meta) *string { return &m.Language }),
	scalar(FieldYear, func(m *Meta) *string { return &m.Year }),
	scalar(FieldMonth, func(m *Meta) *string { return &m.Month }),
	scalar(FieldDay, func(m *Meta) *string { return &m.Day }),
	scalar(FieldVolume, func(m *Meta) *string { return &m.Volume }),
	scalar(FieldIssue, func(m *Meta) *string { return &m.Issue }),
	scalar(FieldPages, func(m *Meta) *string { return &m.Pages }),
	scalar(FieldNotes, func(m *Meta) *string { return &m.Notes }),

	list(FieldFirstNames, false, func(m *Meta) *[]string { return &m.FirstNames }),
	list(FieldLastNames, false, func(m *Meta) *[]string { return &m.LastNames }),
	list(FieldKeywords, true, func(m *Meta) *[]string { return &m.Keywords }),
	list(FieldTags, true, func(m *Meta) *[]string { return &m.Tags }),
	list(FieldURLs, true, func(m *Meta) *[]string { return &m.URLs }),
	list(FieldFiles, false, func(m *Meta) *[]string { return &m.Files }),
	{key: FieldAuthors, kind: KindList, readOnly: false},
	{key: FieldFolders, kind: KindList, set: true, readOnly: true},

	stamp(FieldAdded, func(m *Meta) *int64 { return &m.Added }),
	stamp(FieldLastUpdate, func(m *Meta) *int64 { return &m.LastUpdate }),

	flag(FieldFavourite, func(m *Meta) *bool { return &m.Favourite }),
	flag(FieldRead, func(m *Meta) *bool { return &m.Read }),
	flag(FieldConfirmed, func(m *Meta) *bool { return &m.Confirmed }),
	{key: FieldDeletionPending, kind: KindFlag, readOnly: true, flag: func(m *Meta) *bool { return &m.DeletionPending }},
}

var byKey = func() map[string]*field {
	idx := make(map[string]*field, len(registry))
	for i := range registry {
		idx[registry[i].key] = &registry[i]
	}
	return idx
}()

// Fields returns every field key in schema order.
func Fields() []string {
	keys := make([]string, len(registry))
	for i, f := range registry {
		keys[i] = f.key
	}
	return keys
}

// IsField reports whether key names a schema field.
func IsField(key string) bool {
	_, ok := byKey[key]
	return ok
}

// KindOf returns the kind of a field key.
func KindOf(key string) (Kind, bool) {
	f, ok := byKey[key]
	if !ok {
		return 0, false
	}
	return f.kind, true
}

// CanonicalKey resolves loose spellings ("tags", "Tags", "firstnames") to
// a schema key. It returns "" when nothing matches.
func CanonicalKey(name string) string {
	name = strings.TrimSpace(name)
	if _, ok := byKey[name]; ok {
		return name
	}
	lower := strings.ToLower(strings.TrimSuffix(name, "_l"))
	for _, f := range registry {
		if strings.ToLower(strings.TrimSuffix(f.key, "_l")) == lower {
			return f.key
		}
	}
	switch lower {
	case "author", "authors", "lastnames":
		return FieldAuthors
	case "keyword":
		return FieldKeywords
	case "tag":
		return FieldTags
	case "url":
		return FieldURLs
	case "file":
		return FieldFiles
	case "journal":
		return FieldPublication
	}
	return ""
}

// SetScalar assigns a scalar, flag or time field from its string form.
// Unknown keys are ignored.
func (m *Meta) SetScalar(key, value string) error {
	f, ok := byKey[key]
	if !ok {
		return nil
	}
	if f.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, key)
	}
	switch f.kind {
	case KindScalar:
		f.setStr(m, value)
	case KindFlag:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: %s wants a boolean, got %q", ErrFieldKind, key, value)
		}
		*f.flag(m) = b
	case KindTime:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s wants unix seconds, got %q", ErrFieldKind, key, value)
		}
		*f.time(m) = n
	default:
		return fmt.Errorf("%w: %s is a %s field", ErrFieldKind, key, f.kind)
	}
	return nil
}

// SetList assigns a list field. For authors_l the values are "Last, First"
// names and both name lists are replaced. Unknown keys are ignored.
func (m *Meta) SetList(key string, values []string) error {
	f, ok := byKey[key]
	if !ok {
		return nil
	}
	if f.kind != KindList {
		return fmt.Errorf("%w: %s is a %s field", ErrFieldKind, key, f.kind)
	}
	if f.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, key)
	}
	if key == FieldAuthors {
		m.FirstNames, m.LastNames = nil, nil
		for _, v := range values {
			first, last := SplitName(v)
			m.AddAuthor(first, last)
		}
		return nil
	}
	vals := slices.Clone(values)
	if f.set {
		vals = uniqueStrings(vals)
	}
	*f.list(m) = vals
	return nil
}

// Scalar returns the string form of a scalar, flag or time field.
func (m *Meta) Scalar(key string) (string, bool) {
	f, ok := byKey[key]
	if !ok {
		return "", false
	}
	switch f.kind {
	case KindScalar:
		return f.getStr(m), true
	case KindFlag:
		return strconv.FormatBool(*f.flag(m)), true
	case KindTime:
		return strconv.FormatInt(*f.time(m), 10), true
	}
	return "", false
}

// List returns the value of a list field.
func (m *Meta) List(key string) ([]string, bool) {
	f, ok := byKey[key]
	if !ok || f.kind != KindList {
		return nil, false
	}
	switch key {
	case FieldAuthors:
		return m.Authors(), true
	case FieldFolders:
		names := make([]string, len(m.Folders))
		for i, fr := range m.Folders {
			names[i] = fr.Name
		}
		return names, true
	}
	return *f.list(m), true
}

// CopyField copies one field from src into m. authors_l copies both name
// lists. Read-only and unknown keys are reported as errors.
func (m *Meta) CopyField(src *Meta, key string) error {
	f, ok := byKey[key]
	if !ok {
		return fmt.Errorf("unknown field %q", key)
	}
	if f.readOnly {
		return fmt.Errorf("%w: %s", ErrReadOnly, key)
	}
	switch {
	case key == FieldAuthors:
		m.FirstNames = slices.Clone(src.FirstNames)
		m.LastNames = slices.Clone(src.LastNames)
	case f.kind == KindScalar:
		f.setStr(m, f.getStr(src))
	case f.kind == KindList:
		*f.list(m) = slices.Clone(*f.list(src))
	case f.kind == KindFlag:
		*f.flag(m) = *f.flag(src)
	case f.kind == KindTime:
		*f.time(m) = *f.time(src)
	}
	return nil
}

// Equal reports structural equality: every field, sets compared without
// regard to order, and the extension map.
func Equal(a, b *Meta) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID {
		return false
	}
	for _, f := range registry {
		switch f.kind {
		case KindScalar:
			if f.getStr(a) != f.getStr(b) {
				return false
			}
		case KindFlag:
			if *f.flag(a) != *f.flag(b) {
				return false
			}
		case KindTime:
			if *f.time(a) != *f.time(b) {
				return false
			}
		case KindList:
			if f.list == nil {
				continue
			}
			x, y := *f.list(a), *f.list(b)
			if f.set {
				if !sameSet(x, y) {
					return false
				}
			} else if !slices.Equal(x, y) {
				return false
			}
		}
	}
	if !sameFolders(a.Folders, b.Folders) {
		return false
	}
	if len(a.Extra) != len(b.Extra) {
		return false
	}
	for k, v := range a.Extra {
		if w, ok := b.Extra[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	x, y := sortedUnique(a), sortedUnique(b)
	return slices.Equal(x, y)
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}

func sameFolders(a, b []FolderRef) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	cmp := func(p, q FolderRef) int {
		if p.ID != q.ID {
			if p.ID < q.ID {
				return -1
			}
			return 1
		}
		return strings.Compare(p.Name, q.Name)
	}
	slices.SortFunc(x, cmp)
	slices.SortFunc(y, cmp)
	return slices.Equal(x, y)
}
