package docmeta

// FillMissing copies into m every field that is empty in m and set in src.
// Authors move as a unit: both name lists are taken from src only when m
// has no authors. Ids, flags, time stamps and folders are left alone.
// It returns the keys that were filled.
func (m *Meta) FillMissing(src *Meta) []string {
	var filled []string
	for _, f := range registry {
		if f.readOnly {
			continue
		}
		switch f.kind {
		case KindScalar:
			if f.key == FieldType {
				if (m.Type == "" || m.Type == TypeGeneric) && src.Type != "" && src.Type != TypeGeneric {
					m.Type = src.Type
					filled = append(filled, f.key)
				}
				continue
			}
			if f.getStr(m) == "" && f.getStr(src) != "" {
				f.setStr(m, f.getStr(src))
				filled = append(filled, f.key)
			}
		case KindList:
			if f.list == nil || f.key == FieldFirstNames || f.key == FieldLastNames {
				continue
			}
			if len(*f.list(m)) == 0 && len(*f.list(src)) > 0 {
				_ = m.CopyField(src, f.key)
				filled = append(filled, f.key)
			}
		}
	}
	if len(m.LastNames) == 0 && len(src.LastNames) > 0 {
		_ = m.CopyField(src, FieldAuthors)
		filled = append(filled, FieldAuthors)
	}
	for k, v := range src.Extra {
		if _, ok := m.Extra[k]; !ok {
			m.SetExtra(k, v)
		}
	}
	return filled
}
