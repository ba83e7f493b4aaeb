package mirror

import (
	"errors"
	"testing"
)

func TestDefaultMappings(t *testing.T) {
	if !DefaultMappings[0].Root {
		t.Fatal("the school root must come first")
	}
	seen := make(map[string]bool)
	for _, m := range DefaultMappings {
		table, ok := LookupTable(m.Table)
		if !ok {
			t.Errorf("mapping %q: unknown table %q", m.Collection, m.Table)
			continue
		}
		if seen[m.Table] {
			t.Errorf("table %q mapped twice", m.Table)
		}
		seen[m.Table] = true
		if !table.HasColumn(table.PrimaryKey) || !table.HasColumn(SchoolColumn) {
			t.Errorf("table %q lacks its primary key or %s", table.Name, SchoolColumn)
		}
		if !m.Root && !m.DeriveID && m.IDField != table.PrimaryKey {
			t.Errorf("mapping %q: id field %q, want %q", m.Collection, m.IDField, table.PrimaryKey)
		}
	}
	if len(seen) != len(Tables) {
		t.Errorf("%d tables mapped, want %d", len(seen), len(Tables))
	}
}

func TestSelectMappings(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		want    []string
		wantErr error
	}{
		{name: "all", want: tableNames(DefaultMappings)},
		{name: "root kept", names: []string{"students"}, want: []string{"school", "students"}},
		{name: "fixed order", names: []string{"analytics", "staff"}, want: []string{"school", "staff", "analytics"}},
		{name: "unknown", names: []string{"grades"}, wantErr: ErrUnknownTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectMappings(tt.names)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SelectMappings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			names := tableNames(got)
			if len(names) != len(tt.want) {
				t.Fatalf("SelectMappings() = %v, want %v", names, tt.want)
			}
			for i := range names {
				if names[i] != tt.want[i] {
					t.Errorf("SelectMappings() = %v, want %v", names, tt.want)
					break
				}
			}
		})
	}
}

func tableNames(mappings []Mapping) []string {
	names := make([]string, 0, len(mappings))
	for _, m := range mappings {
		names = append(names, m.Table)
	}
	return names
}

func TestDeriveID(t *testing.T) {
	a := DeriveID("school1", "classAssignments", "doc1")
	if a != DeriveID("school1", "classAssignments", "doc1") {
		t.Error("DeriveID() is not stable")
	}
	if a == DeriveID("school2", "classAssignments", "doc1") {
		t.Error("DeriveID() collides across schools")
	}
	if a == DeriveID("school1", "classAssignments", "doc2") {
		t.Error("DeriveID() collides across documents")
	}
}

func Test_buildRecord(t *testing.T) {
	students := DefaultMappings[2]
	assignments := DefaultMappings[5]
	school := DefaultMappings[0]

	tests := []struct {
		name    string
		table   Table
		mapping Mapping
		doc     Document
		wantID  string
		wantErr error
	}{
		{
			name: "id field", table: StudentsTable, mapping: students,
			doc:    Document{ID: "key", Fields: map[string]Value{"student_id": String("s1"), "id": String("x")}},
			wantID: "s1",
		},
		{
			name: "id fallback", table: StudentsTable, mapping: students,
			doc:    Document{ID: "key", Fields: map[string]Value{"id": String("s1")}},
			wantID: "s1",
		},
		{
			name: "document key only", table: StudentsTable, mapping: students,
			doc:     Document{ID: "autoKey123", Fields: map[string]Value{"name": String("Asha")}},
			wantErr: ErrMalformedDocument,
		},
		{
			name: "numeric id", table: StudentsTable, mapping: students,
			doc:    Document{Fields: map[string]Value{"id": Int(7)}},
			wantID: "7",
		},
		{
			name: "no id", table: StudentsTable, mapping: students,
			doc:     Document{Fields: map[string]Value{"name": String("Asha")}},
			wantErr: ErrMalformedDocument,
		},
		{
			name: "blank id", table: StudentsTable, mapping: students,
			doc:     Document{Fields: map[string]Value{"id": String("  ")}},
			wantErr: ErrMalformedDocument,
		},
		{
			name: "derived id", table: ClassAssignmentsTable, mapping: assignments,
			doc:    Document{ID: "auto1", Fields: map[string]Value{"staff_id": String("t1")}},
			wantID: DeriveID("school1", "classAssignments", "auto1"),
		},
		{
			name: "school root", table: SchoolTable, mapping: school,
			doc:    Document{ID: "other", Fields: map[string]Value{"school_name": String("Hill")}},
			wantID: "school1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := buildRecord(tt.table, tt.mapping, "school1", tt.doc)
			if err != tt.wantErr {
				t.Fatalf("buildRecord() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := rec[tt.table.PrimaryKey]; got != tt.wantID {
				t.Errorf("buildRecord() id = %q, want %q", got, tt.wantID)
			}
			if got := rec[SchoolColumn]; got != "school1" {
				t.Errorf("buildRecord() school_id = %q, want school1", got)
			}
			for col := range rec {
				if !tt.table.HasColumn(col) {
					t.Errorf("buildRecord() kept unknown column %q", col)
				}
			}
		})
	}
}
