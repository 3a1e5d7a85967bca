package pdf

import (
	"bytes"
	"encoding/xml"
	"strings"
)

// xmpList is an RDF container (Alt, Seq or Bag) or a plain text value.
type xmpList struct {
	Alt  []string `xml:"Alt>li"`
	Seq  []string `xml:"Seq>li"`
	Bag  []string `xml:"Bag>li"`
	Text string   `xml:",chardata"`
}

func (l xmpList) values() []string {
	var out []string
	for _, group := range [][]string{l.Alt, l.Seq, l.Bag} {
		for _, v := range group {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	if len(out) == 0 {
		if t := strings.TrimSpace(l.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (l xmpList) first() string {
	if v := l.values(); len(v) > 0 {
		return v[0]
	}
	return ""
}

type xmpDescription struct {
	Title        xmpList `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator      xmpList `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Subject      xmpList `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Description  xmpList `xml:"http://purl.org/dc/elements/1.1/ description"`
	Keywords     string  `xml:"http://ns.adobe.com/pdf/1.3/ Keywords"`
	KeywordsAttr string  `xml:"http://ns.adobe.com/pdf/1.3/ Keywords,attr"`
	DOI          string  `xml:"http://prismstandard.org/namespaces/basic/2.0/ doi"`
	DOIAttr      string  `xml:"http://prismstandard.org/namespaces/basic/2.0/ doi,attr"`
}

// xmpPacket accepts both an x:xmpmeta wrapper and a bare rdf:RDF root.
type xmpPacket struct {
	Wrapped []xmpDescription `xml:"RDF>Description"`
	Direct  []xmpDescription `xml:"Description"`
}

// parseXMP reads the Dublin Core, Adobe PDF and PRISM properties of an XMP
// packet. Properties may be spread over several rdf:Description nodes.
func parseXMP(data []byte) (Info, error) {
	var packet xmpPacket
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	if err := dec.Decode(&packet); err != nil {
		return Info{}, err
	}

	var info Info
	for _, d := range append(packet.Wrapped, packet.Direct...) {
		if t := d.Title.first(); t != "" && info.Title == "" {
			info.Title = t
		}
		if c := d.Creator.values(); len(c) > 0 && len(info.Authors) == 0 {
			info.Authors = c
		}
		if s := d.Description.first(); s != "" && info.Subject == "" {
			info.Subject = s
		}
		info.Keywords = append(info.Keywords, d.Subject.values()...)
		for _, kw := range []string{d.Keywords, d.KeywordsAttr} {
			info.Keywords = append(info.Keywords, splitKeywords(kw)...)
		}
		for _, doi := range []string{d.DOI, d.DOIAttr} {
			if doi = strings.TrimSpace(doi); doi != "" && info.DOI == "" {
				info.DOI = doi
			}
		}
	}
	return info, nil
}
