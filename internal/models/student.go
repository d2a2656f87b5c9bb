package models

import "time"

// Student represents an exam candidate together with their identity-enrollment state.
type Student struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	Email           string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role            string     `gorm:"size:32;not null;default:student" json:"role"`
	DistrictID      *string    `gorm:"size:64;index" json:"district_id"`
	ZoneID          *string    `gorm:"size:64;index" json:"zone_id"`
	FaceReferenceID *string    `gorm:"size:128" json:"face_reference_id"`
	FaceVerifiedAt  *time.Time `json:"face_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasRegisteredIdentity reports whether the student enrolled a reference face.
func (s Student) HasRegisteredIdentity() bool {
	return s.FaceReferenceID != nil && *s.FaceReferenceID != ""
}

// Enrollment links a student to a class for class-scoped exams.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClassID   uint      `gorm:"index:idx_enrollment_class_student,unique;not null" json:"class_id"`
	StudentID uint      `gorm:"index:idx_enrollment_class_student,unique;not null" json:"student_id"`
	Status    string    `gorm:"size:32;not null;default:active" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// EnrollmentStatusActive marks an enrollment that grants exam access.
const EnrollmentStatusActive = "active"
