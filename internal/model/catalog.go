package model

// TimeslotMask is a bitset over the fixed weekly grid of time slots.
// Two sections conflict iff their masks intersect.
type TimeslotMask uint64

// Conflicts reports whether the two masks share any slot.
func (m TimeslotMask) Conflicts(other TimeslotMask) bool {
	return m&other != 0
}

type Subject struct {
	ID        int    `json:"id" bson:"_id"`
	Code      string `json:"code" bson:"code"`
	Name      string `json:"name" bson:"name"`
	Type      string `json:"type" bson:"type"` // "theory" or "lab"
	Credits   int    `json:"credits" bson:"credits"`
	Published bool   `json:"published" bson:"published"`
}

type Section struct {
	ID            int          `json:"id" bson:"_id"`
	SubjectID     int          `json:"subjectId" bson:"subjectId"`
	SectionNumber string       `json:"sectionNumber" bson:"sectionNumber"`
	FacultyUserID string       `json:"facultyUserId" bson:"facultyUserId"`
	MaxSeats      int          `json:"maxSeats" bson:"maxSeats"`
	TimeslotMask  TimeslotMask `json:"timeslotMask" bson:"timeslotMask"`
	Published     bool         `json:"published" bson:"published"`
}

// Enrollment allows a student to act on a subject.
type Enrollment struct {
	StudentUserID string `json:"studentUserId" bson:"studentUserId"`
	SubjectID     int    `json:"subjectId" bson:"subjectId"`
}

// Selection is the authoritative (studentId, subjectId) -> sectionId row.
type Selection struct {
	StudentUserID string `json:"studentUserId" bson:"studentUserId"`
	SubjectID     int    `json:"subjectId" bson:"subjectId"`
	SectionID     int    `json:"sectionId" bson:"sectionId"`
	SelectedAtMs  int64  `json:"selectedAtMs" bson:"selectedAtMs"`
}
