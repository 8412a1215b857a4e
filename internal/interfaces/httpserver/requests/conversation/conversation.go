package conversation

type CreateConversationRequest struct {
	Title string `json:"title" binding:"max=256"`
}

type ListMessagesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}
