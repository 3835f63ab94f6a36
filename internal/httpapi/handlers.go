package httpapi

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pinpoint/internal/attendance"
	"pinpoint/internal/auth"
	"pinpoint/internal/geofence"
)

const dateLayout = "2006-01-02"

type handler struct {
	svc *attendance.Service
}

type signInRequest struct {
	StudentEmail string   `json:"student_email" binding:"required,email"`
	StudentName  string   `json:"student_name"`
	Latitude     *float64 `json:"latitude" binding:"required,latitude"`
	Longitude    *float64 `json:"longitude" binding:"required,longitude"`
}

func (h *handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, _ := auth.FromContext(c)
	if attendance.NormalizeStudentID(claims.Subject) != attendance.NormalizeStudentID(req.StudentEmail) {
		c.JSON(http.StatusForbidden, gin.H{"error": "student mismatch"})
		return
	}

	adm, err := h.svc.SignIn(c.Request.Context(), c.Param("id"), attendance.Candidate{
		StudentID:   req.StudentEmail,
		StudentName: req.StudentName,
		Position:    geofence.Point{Lat: *req.Latitude, Lon: *req.Longitude},
	})
	if err != nil {
		writeError(c, err)
		return
	}

	v := adm.Verdict
	if v.Admitted() {
		c.JSON(http.StatusCreated, gin.H{
			"admitted":     true,
			"record_id":    adm.Record.ID,
			"status":       v.Status,
			"distance_m":   v.Distance,
			"signed_in_at": v.SignInTime,
		})
		return
	}

	body := gin.H{"admitted": false, "reason": v.Outcome}
	status := http.StatusConflict
	switch v.Outcome {
	case attendance.OutcomeOutOfRange:
		status = http.StatusForbidden
		body["distance_m"] = v.Distance
		body["radius_m"] = v.Radius
	case attendance.OutcomeAlreadySignedIn:
		body["status"] = v.Status
		body["signed_in_at"] = v.SignInTime
	}
	c.JSON(status, body)
}

type openRequest struct {
	Latitude  *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" binding:"omitempty,longitude"`
}

func (h *handler) openClass(c *gin.Context) {
	var req openRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// an empty body means "use the building"
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude go together"})
		return
	}

	if _, ok := h.ownedClass(c); !ok {
		return
	}

	var center *geofence.Point
	if req.Latitude != nil {
		center = &geofence.Point{Lat: *req.Latitude, Lon: *req.Longitude}
	}
	class, err := h.svc.OpenClass(c.Request.Context(), c.Param("id"), center)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, classView(class))
}

func (h *handler) closeClass(c *gin.Context) {
	if _, ok := h.ownedClass(c); !ok {
		return
	}
	class, err := h.svc.CloseClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, classView(class))
}

func (h *handler) attendance(c *gin.Context) {
	date := h.svc.Today()
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	if _, ok := h.ownedClass(c); !ok {
		return
	}
	records, err := h.svc.Attendance(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []attendance.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"date": date.Format(dateLayout), "records": records})
}

func (h *handler) deleteRecord(c *gin.Context) {
	if err := h.svc.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ownedClass loads the class in the path and rejects teachers acting on
// someone else's class. Admins may act on any class.
func (h *handler) ownedClass(c *gin.Context) (attendance.ClassSession, bool) {
	class, err := h.svc.Class(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return attendance.ClassSession{}, false
	}
	claims, _ := auth.FromContext(c)
	if claims.Role == auth.RoleTeacher && !strings.EqualFold(class.TeacherEmail, claims.Subject) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your class"})
		return attendance.ClassSession{}, false
	}
	return class, true
}

func classView(class attendance.ClassSession) gin.H {
	view := gin.H{
		"id":      class.ID,
		"code":    class.Code,
		"name":    class.Name,
		"mode":    class.Mode,
		"is_open": class.IsOpen,
		"schedule": gin.H{
			"days":  class.Schedule.Days,
			"start": class.Schedule.Start.String(),
			"end":   class.Schedule.End.String(),
		},
	}
	if s := class.Session; class.IsOpen && s != nil {
		view["opened_at"] = s.OpenedAt
		view["center"] = s.Center
		if s.AutoCloseAt != nil {
			view["auto_close_at"] = *s.AutoCloseAt
		}
	}
	return view
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrAlreadyOpen), errors.Is(err, attendance.ErrNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
