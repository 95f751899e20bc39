package seed

import (
	"fmt"
	"log"

	"tidepool/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
}

// Seed populates the database with test data: users, posts, root comments
// with replies, likes and follows.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("Starting database seeding with %d users and %d posts...", opts.NumUsers, opts.NumPosts)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return fmt.Errorf("clearing data: %w", err)
		}
	}

	f := NewFactory(db)

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := f.CreateUser()
		if err != nil {
			log.Printf("failed to create user: %v", err)
			continue
		}
		users = append(users, user)
	}
	if len(users) == 0 {
		return fmt.Errorf("no users created")
	}

	for i := 0; i < opts.NumPosts; i++ {
		author := users[f.r.Intn(len(users))]
		post, err := f.CreatePost(author)
		if err != nil {
			log.Printf("failed to create post: %v", err)
			continue
		}

		// A few root comments, each with a chance of replies
		for j := 0; j < f.r.Intn(4); j++ {
			commenter := users[f.r.Intn(len(users))]
			root, cerr := f.CreateComment(commenter, post)
			if cerr != nil {
				continue
			}
			for k := 0; k < f.r.Intn(3); k++ {
				replier := users[f.r.Intn(len(users))]
				if _, rerr := f.CreateReply(replier, root, commenter); rerr != nil {
					break
				}
			}
		}

		// Likes from a random sample of users
		for _, user := range users {
			if f.r.Intn(4) == 0 {
				_ = f.CreateLike(user, post)
			}
		}
	}

	// A sparse follow graph
	for _, follower := range users {
		for i := 0; i < f.r.Intn(3); i++ {
			followee := users[f.r.Intn(len(users))]
			if followee.ID != follower.ID {
				_ = f.CreateFollow(follower, followee)
			}
		}
	}

	log.Println("Seeding complete")
	return nil
}

func clearData(db *gorm.DB) error {
	tables := []string{"audit_entries", "notifications", "likes", "follows", "comments", "posts", "users"}
	for _, table := range tables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}
	return nil
}
