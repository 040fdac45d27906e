package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"contactbook/api/internal/models"
	"contactbook/api/internal/service"
)

type contactRequest struct {
	FirstName string  `json:"first_name" binding:"required,max=50"`
	LastName  string  `json:"last_name" binding:"required,max=50"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     string  `json:"phone" binding:"required,min=10,max=16"`
	Birthday  *string `json:"birthday"`
}

type contactResponse struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     *string   `json:"email"`
	Phone     string    `json:"phone"`
	Birthday  *string   `json:"birthday"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toContactResponse(c models.Contact) contactResponse {
	var birthday *string
	if c.Birthday != nil {
		s := c.Birthday.Format("2006-01-02")
		birthday = &s
	}
	return contactResponse{
		ID:        c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Email:     c.Email,
		Phone:     c.Phone,
		Birthday:  birthday,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toContactResponses(contacts []models.Contact) []contactResponse {
	resp := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		resp = append(resp, toContactResponse(c))
	}
	return resp
}

func (req contactRequest) toInput() (service.ContactInput, error) {
	input := service.ContactInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
	}
	if req.Birthday != nil && *req.Birthday != "" {
		birthday, err := time.Parse("2006-01-02", *req.Birthday)
		if err != nil {
			return service.ContactInput{}, err
		}
		input.Birthday = &birthday
	}
	return input, nil
}

func (h HandlerSet) ListContacts(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	contacts, err := h.contactSvc.List(c.Request.Context(), user, skip, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponses(contacts))
}

func (h HandlerSet) GetContact(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	contact, err := h.contactSvc.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponse(contact))
}

func (h HandlerSet) CreateContact(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Birthday must be formatted as YYYY-MM-DD"})
		return
	}

	contact, err := h.contactSvc.Create(c.Request.Context(), user, input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toContactResponse(contact))
}

func (h HandlerSet) UpdateContact(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	input, err := req.toInput()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Birthday must be formatted as YYYY-MM-DD"})
		return
	}

	contact, err := h.contactSvc.Update(c.Request.Context(), user, c.Param("id"), input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponse(contact))
}

func (h HandlerSet) DeleteContact(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	contact, err := h.contactSvc.Delete(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponse(contact))
}

func (h HandlerSet) SearchContacts(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	contacts, err := h.contactSvc.Search(
		c.Request.Context(),
		user,
		c.Query("first_name"),
		c.Query("last_name"),
		c.Query("email"),
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponses(contacts))
}

func (h HandlerSet) UpcomingBirthdays(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Could not validate credentials"})
		return
	}

	contacts, err := h.contactSvc.UpcomingBirthdays(c.Request.Context(), user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toContactResponses(contacts))
}
