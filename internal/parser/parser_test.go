// VodHive - Video Catalog Aggregation and Discovery Platform
// Copyright 2026 VodHive contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vodhive/vodhive

package parser

import (
	"errors"
	"testing"

	"github.com/vodhive/vodhive/internal/models"
)

const jsonList = `{
	"code": 1, "msg": "ok", "page": 2, "pagecount": 10, "limit": 20, "total": 200,
	"list": [
		{
			"vod_id": 42, "vod_name": "禁闭岛", "vod_pic": "http://img.com/a.jpg",
			"vod_year": "2010", "vod_area": "美国", "vod_actor": "莱昂纳多",
			"vod_director": "马丁·斯科塞斯", "vod_content": "剧情片",
			"type_id": 6, "type_name": "剧情片", "vod_score": "8.9",
			"vod_play_from": "hd$$$m3u8",
			"vod_play_url": "第1集$http://a.com/1.m3u8$$$第1集$http://b.com/1.m3u8"
		}
	]
}`

func TestParseJSONList(t *testing.T) {
	got, err := Parse([]byte(jsonList), models.FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Page != 2 || got.PageCount != 10 || got.Total != 200 {
		t.Errorf("pagination mismatch: %+v", got)
	}
	if len(got.List) != 1 {
		t.Fatalf("expected 1 video, got %d", len(got.List))
	}
	v := got.List[0]
	if v.ID != "42" {
		t.Errorf("numeric id should normalize to string, got %q", v.ID)
	}
	if v.Name != "禁闭岛" || v.Year != "2010" || v.TypeID != 6 {
		t.Errorf("field mapping wrong: %+v", v)
	}
	if v.Score != 8.9 {
		t.Errorf("string score should parse, got %v", v.Score)
	}
	if len(v.PlayRoutes) != 2 {
		t.Fatalf("expected 2 play routes, got %v", v.PlayRoutes)
	}
	if v.PlayRoutes["hd"] != "第1集$http://a.com/1.m3u8" {
		t.Errorf("route hd mismatch: %q", v.PlayRoutes["hd"])
	}
}

func TestParseJSONBareNames(t *testing.T) {
	body := `{"code":1,"page":1,"list":[{"id":"7","name":"某剧","year":2021,"tid":"13"}]}`
	got, err := Parse([]byte(body), models.FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := got.List[0]
	if v.Name != "某剧" || v.Year != "2021" || v.TypeID != 13 {
		t.Errorf("bare-name mapping wrong: %+v", v)
	}
}

const xmlList = `<?xml version="1.0" encoding="utf-8"?>
<rss version="5.1">
<list page="1" pagecount="1" pagesize="30" recordcount="1">
<video>
<id>42</id>
<name><![CDATA[禁闭岛]]></name>
<pic>http://img.com/a.jpg</pic>
<year>2010</year>
<area>美国</area>
<actor><![CDATA[莱昂纳多]]></actor>
<director><![CDATA[马丁·斯科塞斯]]></director>
<tid>6</tid>
<type>剧情片</type>
<note>HD</note>
<des><![CDATA[<p>孤岛疑云</p>]]></des>
<dl>
<dd flag="hd"><![CDATA[第1集$http://a.com/1.m3u8]]></dd>
<dd flag="m3u8"><![CDATA[第1集$http://b.com/1.m3u8]]></dd>
</dl>
</video>
</list>
</rss>`

func TestParseXMLList(t *testing.T) {
	got, err := Parse([]byte(xmlList), models.FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Page != 1 || got.PageCount != 1 || got.Total != 1 || got.Limit != 30 {
		t.Errorf("pagination mismatch: %+v", got)
	}
	if len(got.List) != 1 {
		t.Fatalf("expected 1 video, got %d", len(got.List))
	}
	v := got.List[0]
	if v.Name != "禁闭岛" {
		t.Errorf("CDATA name should decode, got %q", v.Name)
	}
	if v.TypeID != 6 || v.TypeName != "剧情片" || v.Remarks != "HD" {
		t.Errorf("field mapping wrong: %+v", v)
	}
	if v.Content != "<p>孤岛疑云</p>" {
		t.Errorf("content should pass through raw for the cleaner, got %q", v.Content)
	}
	if v.PlayRoutes["hd"] != "第1集$http://a.com/1.m3u8" {
		t.Errorf("dd flag route mismatch: %v", v.PlayRoutes)
	}
	if v.PlayRoutes["m3u8"] != "第1集$http://b.com/1.m3u8" {
		t.Errorf("second dd route mismatch: %v", v.PlayRoutes)
	}
}

func TestParseXMLItemFallback(t *testing.T) {
	body := `<list page="1" pagecount="3"><item><name>猫</name><tid>24</tid></item></list>`
	got, err := Parse([]byte(body), models.FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.List) != 1 || got.List[0].Name != "猫" || got.List[0].TypeID != 24 {
		t.Errorf("item fallback failed: %+v", got.List)
	}
	if got.PageCount != 3 {
		t.Errorf("pagecount on bare list root should parse, got %d", got.PageCount)
	}
}

func TestParseXMLDuplicateDDFirstWins(t *testing.T) {
	body := `<list page="1"><video><name>a</name><dl>
<dd flag="hd"></dd>
<dd flag="hd"><![CDATA[第1集$http://a.com/1.m3u8]]></dd>
<dd flag="hd"><![CDATA[第1集$http://b.com/1.m3u8]]></dd>
</dl></video></list>`
	got, err := Parse([]byte(body), models.FormatXML)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.List[0].PlayRoutes["hd"] != "第1集$http://a.com/1.m3u8" {
		t.Errorf("first non-empty dd should win, got %v", got.List[0].PlayRoutes)
	}
}

func TestParseEmptyBody(t *testing.T) {
	if _, err := Parse([]byte("  \n"), models.FormatAuto); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("expected ErrEmptyBody, got %v", err)
	}
}

func TestParseUnrecognized(t *testing.T) {
	if _, err := Parse([]byte("<html><body>403</body></html>"), models.FormatXML); !errors.Is(err, ErrUnrecognized) {
		t.Errorf("expected ErrUnrecognized for HTML, got %v", err)
	}
	if _, err := Parse([]byte("plain text error"), models.FormatAuto); !errors.Is(err, ErrUnrecognized) {
		t.Errorf("expected ErrUnrecognized for text, got %v", err)
	}
}

func TestSniff(t *testing.T) {
	cases := []struct {
		in   string
		want models.SourceFormat
	}{
		{`<?xml version="1.0"?><list/>`, models.FormatXML},
		{`<rss><list/></rss>`, models.FormatXML},
		{`<list page="1"/>`, models.FormatXML},
		{`{"code":1}`, models.FormatJSON},
		{`[1,2]`, models.FormatJSON},
		{`garbage`, models.FormatJSON},
	}
	for _, tc := range cases {
		if got := sniff(tc.in); got != tc.want {
			t.Errorf("sniff(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
