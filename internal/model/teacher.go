package model

// TeacherLoginRequest is the payload of the teacher PIN gate.
type TeacherLoginRequest struct {
	PIN  string `json:"pin" binding:"required,min=4,max=32"`
	Name string `json:"name" binding:"required,max=80,display_name"`
}

// TeacherLoginResponse carries the signed teacher token.
type TeacherLoginResponse struct {
	Token     string `json:"token"`
	TeacherID string `json:"teacher_id"`
	Name      string `json:"name"`
}
