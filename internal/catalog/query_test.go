package catalog

import (
	"strings"
	"testing"
)

func TestListFilterWhereClauseEmpty(t *testing.T) {
	where, args := ListFilter{}.whereClause()
	if where != "" || len(args) != 0 {
		t.Fatalf("expected empty clause, got %q %v", where, args)
	}
}

func TestListFilterWhereClauseCombinesConditions(t *testing.T) {
	f := ListFilter{Path: "/photos/2025", FileType: "image", CameraModel: "X100"}
	where, args := f.whereClause()

	if !strings.HasPrefix(where, " WHERE ") {
		t.Fatalf("expected WHERE prefix, got %q", where)
	}
	for _, want := range []string{"file_path LIKE", "file_type = ?", "camera_model = ?"} {
		if !strings.Contains(where, want) {
			t.Errorf("expected clause to contain %q, got %q", want, where)
		}
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 bind args, got %d: %v", len(args), args)
	}
}

func TestLikePrefixEscapesWildcards(t *testing.T) {
	got := likePrefix("/a_b%c\\d")
	want := `/a\_b\%c\\d`
	if got != want {
		t.Errorf("likePrefix = %q, want %q", got, want)
	}
}

func TestSortFieldColumn(t *testing.T) {
	cases := map[SortField]string{
		SortExifTimestamp:  "exif_timestamp",
		SortCreateTime:     "create_time",
		SortModifyTime:     "modify_time",
		SortEffective:      "sort_time",
		SortField("bogus"): "sort_time",
	}
	for field, want := range cases {
		if got := field.column(); got != want {
			t.Errorf("%v.column() = %q, want %q", field, got, want)
		}
	}
}

func TestOrderSQL(t *testing.T) {
	if OrderAsc.sql() != "ASC" {
		t.Errorf("OrderAsc.sql() = %q, want ASC", OrderAsc.sql())
	}
	if OrderDesc.sql() != "DESC" {
		t.Errorf("OrderDesc.sql() = %q, want DESC", OrderDesc.sql())
	}
	if Order("bogus").sql() != "DESC" {
		t.Errorf("unknown order should default to DESC")
	}
}
