package portal

import (
	"fmt"
	"sort"
)

// Operation is one authenticated portal page.
type Operation struct {
	Name        string `json:"name" yaml:"name"`
	Path        string `json:"path" yaml:"path"`
	Description string `json:"description" yaml:"description"`
	// NeedsTerm adds the selected semester to the request.
	NeedsTerm bool `json:"needs_term" yaml:"needs_term"`
}

var operations = map[string]Operation{
	"attendance": {Name: "attendance", Path: "/processViewStudentAttendance", Description: "Course attendance for the term", NeedsTerm: true},
	"grades":     {Name: "grades", Path: "/examinations/examGradeView/doStudentGradeView", Description: "Grades for the term", NeedsTerm: true},
	"timetable":  {Name: "timetable", Path: "/processViewTimeTable", Description: "Weekly timetable for the term", NeedsTerm: true},
	"curriculum": {Name: "curriculum", Path: "/academics/common/Curriculum", Description: "Programme curriculum"},
	"profile":    {Name: "profile", Path: "/studentsRecord/StudentProfileAllView", Description: "Student profile"},
	"contact":    {Name: "contact", Path: "/proctor/viewProctorDetails", Description: "Proctor and contact information"},
	"receipts":   {Name: "receipts", Path: "/p2p/getReceiptsApplno", Description: "Fee receipts"},
	"calendar":   {Name: "calendar", Path: "/academics/common/CalendarPreview", Description: "Academic calendar for the term", NeedsTerm: true},
	"marks":      {Name: "marks", Path: "/examinations/doStudentMarkView", Description: "Assessment marks for the term", NeedsTerm: true},
	"feedback":   {Name: "feedback", Path: "/academics/common/FeedbackStatus", Description: "Course feedback status", NeedsTerm: true},
}

// Operations lists the authenticated pages, sorted by name.
func Operations() []Operation {
	out := make([]Operation, 0, len(operations))
	for _, op := range operations {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupOperation finds an operation by name.
func LookupOperation(name string) (Operation, error) {
	op, ok := operations[name]
	if !ok {
		return Operation{}, fmt.Errorf("unknown operation %q", name)
	}
	return op, nil
}
