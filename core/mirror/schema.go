package mirror

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SchoolColumn scopes every cache row to a school.
const SchoolColumn = "school_id"

// Cache tables. Column names follow the remote field names; DDL lives in fs/migrations.
var (
	SchoolTable = Table{
		Name: "school", PrimaryKey: "school_id",
		Columns: []string{"school_id", "school_name", "school_code", "address", "created_at"},
	}
	StaffTable = Table{
		Name: "staff", PrimaryKey: "staff_id",
		Columns: []string{"staff_id", "school_id", "name", "email", "password_hash", "role", "phone", "language_preference", "created_at"},
	}
	StudentsTable = Table{
		Name: "students", PrimaryKey: "student_id",
		Columns: []string{"student_id", "school_id", "name", "email", "password_hash", "class_id", "section", "phone", "language_preference", "created_at"},
	}
	ClassesTable = Table{
		Name: "classes", PrimaryKey: "class_id",
		Columns: []string{"class_id", "school_id", "class_name", "section_count", "sections"},
	}
	SubjectsTable = Table{
		Name: "subjects", PrimaryKey: "subject_id",
		Columns: []string{"subject_id", "school_id", "subject_name"},
	}
	ClassAssignmentsTable = Table{
		Name: "classAssignments", PrimaryKey: "assignment_id",
		Columns: []string{"assignment_id", "school_id", "staff_id", "class_id", "section", "subject", "is_incharge", "assigned_at"},
	}
	TimetablesTable = Table{
		Name: "timetables", PrimaryKey: "timetable_id",
		Columns: []string{"timetable_id", "school_id", "class_id", "section", "day", "periods", "created_by", "created_at"},
	}
	ContentTable = Table{
		Name: "content", PrimaryKey: "content_id",
		Columns: []string{
			"content_id", "school_id", "class_id", "class_name", "section", "subject_name", "uploaded_by",
			"content_url", "is_file", "type", "instructions", "deadline", "assignment_name", "timestamp",
		},
	}
	ProgressTable = Table{
		Name: "progress", PrimaryKey: "progress_id",
		Columns: []string{
			"progress_id", "school_id", "student_id", "student_name", "class_id", "class_name", "section",
			"subject_name", "assignment_id", "assignment_name", "assignment_url", "is_file", "score", "graded_by", "timestamp",
		},
	}
	AttendanceTable = Table{
		Name: "attendance", PrimaryKey: "attendance_id",
		Columns: []string{"attendance_id", "school_id", "class_id", "section", "date", "marked_by", "attendance_data"},
	}
	AnalyticsTable = Table{
		Name: "analytics", PrimaryKey: "analytics_id",
		Columns: []string{"analytics_id", "school_id", "metric_name", "metric_value", "period", "generated_at"},
	}

	// Tables lists every cache table, parents first.
	Tables = []Table{
		SchoolTable, StaffTable, StudentsTable, ClassesTable, SubjectsTable, ClassAssignmentsTable,
		TimetablesTable, ContentTable, ProgressTable, AttendanceTable, AnalyticsTable,
	}

	// DefaultMappings is the fixed, ordered list of mirrored collections.
	// Tables are independent: the order only matters for the school root, which goes first.
	DefaultMappings = []Mapping{
		{Collection: "school", Table: "school", IDField: "school_id", Root: true},
		{Collection: "staff", Table: "staff", IDField: "staff_id"},
		{Collection: "students", Table: "students", IDField: "student_id"},
		{Collection: "classes", Table: "classes", IDField: "class_id"},
		{Collection: "subjects", Table: "subjects", IDField: "subject_id"},
		{Collection: "classAssignments", Table: "classAssignments", IDField: "assignment_id", DeriveID: true},
		{Collection: "timetables", Table: "timetables", IDField: "timetable_id"},
		{Collection: "content", Table: "content", IDField: "content_id"},
		{Collection: "progress", Table: "progress", IDField: "progress_id"},
		{Collection: "attendance", Table: "attendance", IDField: "attendance_id"},
		{Collection: "analytics", Table: "analytics", IDField: "analytics_id"},
	}

	derivedIDSpace = uuid.MustParse("6f1c1d3e-2b7a-5c41-9e0d-3a8b6f2e4c10")
)

// LookupTable returns the cache table with the given name.
func LookupTable(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// SelectMappings keeps the DefaultMappings whose collection or table is listed, in their fixed order.
// The school root is always kept. An empty list selects everything.
func SelectMappings(names []string) ([]Mapping, error) {
	if len(names) == 0 {
		return DefaultMappings, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	mappings := make([]Mapping, 0, len(names)+1)
	for _, m := range DefaultMappings {
		if m.Root || wanted[m.Collection] || wanted[m.Table] {
			mappings = append(mappings, m)
			delete(wanted, m.Collection)
			delete(wanted, m.Table)
		}
	}
	for name := range wanted {
		return nil, errors.Wrapf(ErrUnknownTable, "%q", name)
	}
	return mappings, nil
}

// DeriveID assigns a stable local id to a document whose collection has no id column,
// so re-pulling the same document replaces its row.
func DeriveID(schoolID, collection, docID string) string {
	return uuid.NewSHA1(derivedIDSpace, []byte(schoolID+"/"+collection+"/"+docID)).String()
}
