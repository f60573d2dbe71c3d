package server

import (
	"errors"

	"piazza/internal/models"
	"piazza/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreatePost handles POST /posts/create
// @Summary Create post
// @Description Status is derived from expiresAt, so a past date is stored as Expired
// @Tags posts
// @Accept json
// @Produce json
// @Param request body service.CreatePostInput true "Post"
// @Success 201 {object} object{message=string,post=models.Post}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/create [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req service.CreatePostInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	post, err := s.postSvc().CreatePost(c.UserContext(), req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created successfully!",
		"post":    post,
	})
}

// GetLivePosts handles GET /posts/topic/:topic
// @Summary Live posts by topic
// @Tags posts
// @Produce json
// @Param topic path string true "Topic"
// @Success 200 {object} object{message=string,posts=[]models.Post}
// @Failure 404 {object} object{message=string}
// @Router /posts/topic/{topic} [get]
func (s *Server) GetLivePosts(c *fiber.Ctx) error {
	topic := models.NormalizeTopic(c.Params("topic"))

	posts, err := s.postSvc().LivePostsByTopic(c.UserContext(), topic)
	if err != nil {
		return respondTopicError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Live posts for topic: " + topic,
		"posts":   posts,
	})
}

// GetMostActivePost handles GET /posts/topic/:topic/most-active
// @Summary Most liked live post in a topic
// @Tags posts
// @Produce json
// @Param topic path string true "Topic"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 404 {object} object{message=string}
// @Router /posts/topic/{topic}/most-active [get]
func (s *Server) GetMostActivePost(c *fiber.Ctx) error {
	topic := models.NormalizeTopic(c.Params("topic"))

	post, err := s.postSvc().MostActivePost(c.UserContext(), topic)
	if err != nil {
		return respondTopicError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Most active post for topic: " + topic,
		"post":    post,
	})
}

// GetExpiredPosts handles GET /posts/topic/:topic/expired
// @Summary Expired posts by topic
// @Tags posts
// @Produce json
// @Param topic path string true "Topic"
// @Success 200 {object} object{message=string,posts=[]models.Post}
// @Failure 404 {object} object{message=string}
// @Router /posts/topic/{topic}/expired [get]
func (s *Server) GetExpiredPosts(c *fiber.Ctx) error {
	topic := models.NormalizeTopic(c.Params("topic"))

	posts, err := s.postSvc().ExpiredPostsByTopic(c.UserContext(), topic)
	if err != nil {
		return respondTopicError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Expired posts for topic: " + topic,
		"posts":   posts,
	})
}

// CheckPostStatus handles PUT /posts/check-status/:id
// @Summary Re-evaluate post status
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/check-status/{id} [put]
func (s *Server) CheckPostStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postSvc().CheckStatus(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Post status updated.",
		"post":    post,
	})
}

// LikePost handles POST /posts/:id/like
// @Summary Like post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postSvc().Like(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Post liked!",
		"post":    post,
	})
}

// DislikePost handles POST /posts/:id/dislike
// @Summary Dislike post
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/dislike [post]
func (s *Server) DislikePost(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return nil
	}

	post, err := s.postSvc().Dislike(c.UserContext(), id)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Post disliked!",
		"post":    post,
	})
}

// AddComment handles POST /posts/:id/comment
// @Summary Comment on post
// @Tags posts
// @Accept json
// @Produce json
// @Param id path int true "Post ID"
// @Param request body service.AddCommentInput true "Comment"
// @Success 201 {object} object{message=string,post=models.Post}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comment [post]
func (s *Server) AddComment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return nil
	}

	var req service.AddCommentInput
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	req.PostID = id

	post, err := s.postSvc().AddComment(c.UserContext(), req)
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Comment added successfully!",
		"post":    post,
	})
}

// DeleteComment handles DELETE /posts/:postId/comment/:commentId
// @Summary Delete comment
// @Description A comment id that is not on the post, or is not a positive integer, leaves the post unchanged
// @Tags posts
// @Produce json
// @Param postId path int true "Post ID"
// @Param commentId path string true "Comment ID"
// @Success 200 {object} object{message=string,post=models.Post}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{postId}/comment/{commentId} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, err := paramID(c, "postId")
	if err != nil {
		return nil
	}
	// A malformed comment id cannot name a comment on the post.
	commentID, err := c.ParamsInt("commentId")
	if err != nil || commentID < 0 {
		commentID = 0
	}

	post, err := s.postSvc().DeleteComment(c.UserContext(), postID, uint(commentID))
	if err != nil {
		return models.RespondWithAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Comment deleted successfully!",
		"post":    post,
	})
}

// respondTopicError keeps the {"message": ...} body topic listings have
// always used for not-found results.
func respondTopicError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": appErr.Message})
	}
	return models.RespondWithAppError(c, err)
}

func (s *Server) postSvc() *service.PostService {
	if s.postService == nil {
		var events service.EventPublisher
		if s.notifier != nil {
			events = s.notifier
		}
		s.postService = service.NewPostService(s.postRepo, s.userRepo, events)
	}
	return s.postService
}
