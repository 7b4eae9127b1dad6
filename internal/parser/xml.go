// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseXML decodes the CMS XML dialect: pagination attributes on the root
// <list> element (falling back to <rss>), one <video> (or <item>) element
// per record, and play URLs inside <dl><dd flag=…><![CDATA[…]]></dd></dl>.
//
// The walk is token-based rather than schema-bound because element names
// vary between sources (vod_name vs name, video vs item) and the <dd> route
// attribute cannot be expressed in a fixed struct mapping.
func parseXML(body string) (*VideoList, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	out := &VideoList{Code: 1}
	sawEnvelope := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch strings.ToLower(start.Name.Local) {
		case "list":
			readPagination(out, start)
			sawEnvelope = true
		case "rss":
			// Some sources put pagination on <rss> directly.
			if !sawEnvelope {
				readPagination(out, start)
			}
			sawEnvelope = true
		case "video", "item":
			v, err := readXMLVideo(dec, start)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
			}
			out.List = append(out.List, v)
		}
	}

	if !sawEnvelope {
		return nil, ErrUnrecognized
	}
	return out, nil
}

// readPagination pulls page/pagecount/pagesize/recordcount attributes.
func readPagination(out *VideoList, start xml.StartElement) {
	for _, attr := range start.Attr {
		n, err := strconv.Atoi(strings.TrimSpace(attr.Value))
		if err != nil {
			continue
		}
		switch strings.ToLower(attr.Name.Local) {
		case "page":
			out.Page = n
		case "pagecount":
			out.PageCount = n
		case "pagesize", "limit":
			out.Limit = n
		case "recordcount", "total":
			out.Total = n
		}
	}
}

// readXMLVideo consumes one <video>/<item> element and maps its children
// onto the normalized record.
func readXMLVideo(dec *xml.Decoder, start xml.StartElement) (Video, error) {
	v := Video{}
	depth := 1
	var field string       // current leaf element under the video
	var ddFlag string      // route name of the current <dd>
	var text strings.Builder
	inDD := false

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return v, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			name := strings.ToLower(t.Name.Local)
			switch name {
			case "dl":
				// Container; keep walking into its <dd> children.
			case "dd":
				inDD = true
				ddFlag = ""
				for _, attr := range t.Attr {
					if strings.ToLower(attr.Name.Local) == "flag" {
						ddFlag = strings.TrimSpace(attr.Value)
					}
				}
				text.Reset()
			default:
				field = name
				text.Reset()
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			depth--
			name := strings.ToLower(t.Name.Local)
			value := strings.TrimSpace(text.String())
			switch {
			case name == "dd" && inDD:
				inDD = false
				setPlayRoute(&v, ddFlag, value)
			case name == "dl":
				// nothing to collect on close
			case depth >= 1 && name == field:
				setXMLField(&v, field, value)
				field = ""
			}
			text.Reset()
		}
	}
	return v, nil
}

// setPlayRoute records one <dd> play-URL entry. For duplicate flags the
// first non-empty value wins.
func setPlayRoute(v *Video, flag, value string) {
	if value == "" {
		return
	}
	if flag == "" {
		flag = "default"
	}
	if v.PlayRoutes == nil {
		v.PlayRoutes = make(map[string]string)
	}
	if _, exists := v.PlayRoutes[flag]; !exists {
		v.PlayRoutes[flag] = value
	}
}

// setXMLField maps a leaf element name onto the record, accepting both the
// vod_-prefixed and bare naming conventions.
func setXMLField(v *Video, name, value string) {
	switch strings.TrimPrefix(name, "vod_") {
	case "id":
		v.ID = value
	case "name":
		v.Name = value
	case "pic":
		v.Pic = value
	case "area":
		v.Area = value
	case "year":
		v.Year = value
	case "lang", "language":
		v.Language = value
	case "actor":
		v.Actor = value
	case "director":
		v.Director = value
	case "content", "des", "desc", "blurb":
		if v.Content == "" {
			v.Content = value
		}
	case "note", "remarks":
		if v.Remarks == "" {
			v.Remarks = value
		}
	case "tid", "type_id":
		if n, err := strconv.Atoi(value); err == nil {
			v.TypeID = n
		}
	case "type", "type_name", "class":
		if v.TypeName == "" {
			v.TypeName = value
		}
	case "score", "rating":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			v.Score = f
		}
	case "tag":
		v.Tag = value
	}
}
