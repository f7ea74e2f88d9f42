package v1

import (
	"net/http"

	"shramsaathi-backend/internal/delivery/http/response"
	"shramsaathi-backend/internal/domain"
	"shramsaathi-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatUC domain.ChatUsecase
}

func NewChatHandler(protected *gin.RouterGroup, chatUC domain.ChatUsecase) {
	handler := &ChatHandler{chatUC: chatUC}

	chat := protected.Group("/chat")
	{
		chat.POST("", handler.Send)
		chat.GET("/:applicationId", handler.History)
	}
}

// Send godoc
// @Summary      Persist a chat message
// @Description  Stores a message on an accepted application. Resending a clientMessageId returns the stored message.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Param        body  body      domain.SendMessageInput  true  "Message"
// @Success      201   {object}  response.Response{data=domain.ChatMessage}
// @Failure      400   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Failure      500   {object}  response.Response
// @Router       /chat [post]
// @Security     BearerAuth
func (h *ChatHandler) Send(c *gin.Context) {
	var in domain.SendMessageInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(apperror.BadRequest(err.Error()))
		return
	}

	userID, _ := actor(c)
	if in.SenderID == 0 {
		in.SenderID = userID
	}
	msg, err := h.chatUC.SendMessage(c.Request.Context(), userID, in)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusCreated, "Message sent", msg)
}

// History godoc
// @Summary      Chat history
// @Description  Messages of an application, oldest first
// @Tags         chat
// @Produce      json
// @Param        applicationId  path      int  true  "Application ID"
// @Success      200            {object}  response.Response{data=[]domain.ChatMessage}
// @Failure      403            {object}  response.Response
// @Failure      404            {object}  response.Response
// @Router       /chat/{applicationId} [get]
// @Security     BearerAuth
func (h *ChatHandler) History(c *gin.Context) {
	appID, err := pathID(c, "applicationId")
	if err != nil {
		c.Error(err)
		return
	}

	userID, _ := actor(c)
	msgs, err := h.chatUC.GetHistory(c.Request.Context(), userID, appID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Chat history", msgs)
}
