package comments

import (
	"context"

	"tidepool/internal/models"
	"tidepool/internal/repository"
)

const (
	// DefaultPreviewSize is the bounded number of replies returned inline
	// with each root comment.
	DefaultPreviewSize = 2

	maxPageSize = 100
)

// CommentNode is the read-model shape of one comment. Root nodes carry a
// bounded preview of their children; the full reply set is paged separately
// through FindReplies.
type CommentNode struct {
	ID            uint          `json:"id"`
	UserID        uint          `json:"user_id"`
	Username      string        `json:"username"`
	Content       string        `json:"content"`
	ParentID      *uint         `json:"parent_id"`
	ReplyToUserID *uint         `json:"reply_to_user_id"`
	CreatedAt     string        `json:"created_at"`
	Children      []CommentNode `json:"children,omitempty"`
	ChildCount    int64         `json:"child_count"`
}

// RootPage is one assembled page of root comments with previews.
type RootPage struct {
	TargetType string        `json:"target_type"`
	TargetID   uint          `json:"target_id"`
	PageNo     int           `json:"page_no"`
	PageSize   int           `json:"page_size"`
	Comments   []CommentNode `json:"comments"`
}

// ReplyPage is one assembled page of a root comment's replies.
type ReplyPage struct {
	CommentID uint          `json:"comment_id"`
	PageNo    int           `json:"page_no"`
	PageSize  int           `json:"page_size"`
	Replies   []CommentNode `json:"replies"`
}

// Assembler answers comment read queries, serving cached pages when the
// target's version marker still matches and recomputing otherwise. A cache
// hit and a recompute for the same inputs produce identical structures
// because both go through the same assembly path.
type Assembler struct {
	repo        repository.CommentRepository
	cache       *Cache
	previewSize int
}

// NewAssembler creates an Assembler. previewSize <= 0 selects
// DefaultPreviewSize.
func NewAssembler(repo repository.CommentRepository, cache *Cache, previewSize int) *Assembler {
	if previewSize <= 0 {
		previewSize = DefaultPreviewSize
	}
	return &Assembler{repo: repo, cache: cache, previewSize: previewSize}
}

// FindRootComments returns one page of root comments for the target, newest
// root first, each carrying its reply count and up to previewSize earliest
// replies. Preview ordering is earliest-first everywhere, matching natural
// conversation order.
func (a *Assembler) FindRootComments(
	ctx context.Context,
	targetType string,
	targetID uint,
	pageNo, pageSize int,
) (*RootPage, error) {
	pageNo, pageSize = clampPage(pageNo, pageSize)

	version, _ := a.cache.Version(ctx, targetType, targetID)
	key := rootsKey(targetType, targetID, version, pageNo, pageSize)

	var page RootPage
	if a.cache.get(ctx, key, &page) {
		return &page, nil
	}

	assembled, err := a.assembleRoots(ctx, targetType, targetID, pageNo, pageSize)
	if err != nil {
		return nil, err
	}
	a.cache.set(ctx, key, assembled)
	return assembled, nil
}

func (a *Assembler) assembleRoots(
	ctx context.Context,
	targetType string,
	targetID uint,
	pageNo, pageSize int,
) (*RootPage, error) {
	offset := (pageNo - 1) * pageSize
	roots, err := a.repo.ListRoots(ctx, targetType, targetID, offset, pageSize)
	if err != nil {
		return nil, err
	}

	parentIDs := make([]uint, len(roots))
	for i, root := range roots {
		parentIDs[i] = root.ID
	}

	previews, err := a.repo.ListRepliesByParents(ctx, parentIDs, a.previewSize)
	if err != nil {
		return nil, err
	}
	counts, err := a.repo.CountReplies(ctx, parentIDs)
	if err != nil {
		return nil, err
	}

	page := &RootPage{
		TargetType: targetType,
		TargetID:   targetID,
		PageNo:     pageNo,
		PageSize:   pageSize,
		Comments:   make([]CommentNode, 0, len(roots)),
	}
	for _, root := range roots {
		node := toNode(root)
		node.ChildCount = counts[root.ID]
		for _, reply := range previews[root.ID] {
			node.Children = append(node.Children, toNode(reply))
		}
		page.Comments = append(page.Comments, node)
	}
	return page, nil
}

// FindReplies returns one flat page of a root comment's replies in creation
// order, independent of the preview slice.
func (a *Assembler) FindReplies(
	ctx context.Context,
	commentID uint,
	pageNo, pageSize int,
) (*ReplyPage, error) {
	pageNo, pageSize = clampPage(pageNo, pageSize)

	root, err := a.repo.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !root.IsRoot() {
		return nil, models.NewValidationError("replies can only be listed for a root comment")
	}

	version, _ := a.cache.Version(ctx, root.TargetType, root.TargetID)
	key := repliesKey(commentID, version, pageNo, pageSize)

	var page ReplyPage
	if a.cache.get(ctx, key, &page) {
		return &page, nil
	}

	offset := (pageNo - 1) * pageSize
	replies, err := a.repo.ListReplies(ctx, commentID, offset, pageSize)
	if err != nil {
		return nil, err
	}

	assembled := &ReplyPage{
		CommentID: commentID,
		PageNo:    pageNo,
		PageSize:  pageSize,
		Replies:   make([]CommentNode, 0, len(replies)),
	}
	for _, reply := range replies {
		assembled.Replies = append(assembled.Replies, toNode(reply))
	}
	a.cache.set(ctx, key, assembled)
	return assembled, nil
}

func toNode(c *models.Comment) CommentNode {
	return CommentNode{
		ID:            c.ID,
		UserID:        c.UserID,
		Username:      c.User.Username,
		Content:       c.Content,
		ParentID:      c.ParentID,
		ReplyToUserID: c.ReplyToUserID,
		CreatedAt:     c.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

func clampPage(pageNo, pageSize int) (int, int) {
	if pageNo <= 0 {
		pageNo = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return pageNo, pageSize
}
