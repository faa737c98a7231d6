package feed

import "geofeed/internal/model"

// Aggregate reduces engagement edges into one aggregate per post.
//
// Edges referencing posts outside posts are ignored, and posts without any
// edge get the zero aggregate. LikedByViewer is only set when viewerID is
// non-nil and a like edge from that viewer exists.
func Aggregate(posts []model.Post, edges []model.EngagementEdge, viewerID *int64) map[int64]model.EngagementAggregate {
	result := make(map[int64]model.EngagementAggregate, len(posts))
	for _, p := range posts {
		result[p.ID] = model.EngagementAggregate{}
	}

	for _, e := range edges {
		agg, ok := result[e.PostID]
		if !ok {
			continue
		}
		switch e.Kind {
		case model.EdgeLike:
			agg.LikeCount++
			if viewerID != nil && e.ActorID == *viewerID {
				agg.LikedByViewer = true
			}
		case model.EdgeComment:
			agg.CommentCount++
		}
		result[e.PostID] = agg
	}

	return result
}

// Annotate attaches aggregates to posts, preserving the order of posts.
func Annotate(posts []model.Post, aggregates map[int64]model.EngagementAggregate) []model.FeedPost {
	out := make([]model.FeedPost, len(posts))
	for i, p := range posts {
		out[i] = model.FeedPost{
			Post:                p,
			EngagementAggregate: aggregates[p.ID],
		}
	}
	return out
}
