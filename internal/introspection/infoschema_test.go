package introspection

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitygraph/internal/sqltype"
)

func expectBlogSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE", "TABLE_COMMENT"}).
			AddRow("logs", "BASE TABLE", nil).
			AddRow("post_tags", "BASE TABLE", "").
			AddRow("posts", "BASE TABLE", "Blog posts").
			AddRow("tags", "BASE TABLE", "").
			AddRow("users", "BASE TABLE", ""))

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.COLUMNS").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME", "COLUMN_TYPE", "COLUMN_COMMENT", "IS_NULLABLE"}).
			AddRow("logs", "message", "text", nil, "YES").
			AddRow("post_tags", "post_id", "bigint", nil, "NO").
			AddRow("post_tags", "tag_id", "int", nil, "NO").
			AddRow("posts", "id", "bigint", nil, "NO").
			AddRow("posts", "title", "varchar(200)", "Headline", "NO").
			AddRow("posts", "author_id", "bigint", nil, "NO").
			AddRow("posts", "editor_id", "bigint", nil, "YES").
			AddRow("posts", "published_on", "date", nil, "YES").
			AddRow("tags", "id", "int", nil, "NO").
			AddRow("tags", "label", "varchar(50)", nil, "NO").
			AddRow("users", "id", "bigint", nil, "NO").
			AddRow("users", "name", "varchar(100)", nil, "NO"))

	mock.ExpectQuery("CONSTRAINT_NAME = 'PRIMARY'").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "COLUMN_NAME"}).
			AddRow("post_tags", "post_id").
			AddRow("post_tags", "tag_id").
			AddRow("posts", "id").
			AddRow("tags", "id").
			AddRow("users", "id"))

	mock.ExpectQuery("REFERENCED_TABLE_NAME IS NOT NULL").
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "CONSTRAINT_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME"}).
			AddRow("post_tags", "fk_pt_post", "post_id", "posts", "id").
			AddRow("post_tags", "fk_pt_tag", "tag_id", "tags", "id").
			AddRow("posts", "fk_author", "author_id", "users", "id").
			AddRow("posts", "fk_editor", "editor_id", "users", "id"))
}

func TestInfoSchemaProvider_ListEntities(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectBlogSchema(mock)

	var logs bytes.Buffer
	provider := NewInfoSchemaProvider(db, "blog", slog.New(slog.NewTextHandler(&logs, nil)))

	entities, err := provider.ListEntities(context.Background())
	require.NoError(t, err)

	var tables []string
	for _, e := range entities {
		tables = append(tables, e.Table)
	}
	assert.Equal(t, []string{"posts", "tags", "users"}, tables)
	assert.Equal(t, "Blog posts", entities[0].Description)
	assert.Contains(t, logs.String(), "skipping table without primary key")

	// The snapshot is cached; no further queries are expected.
	_, err = provider.DescribeFields(context.Background(), "posts")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInfoSchemaProvider_Build(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	expectBlogSchema(mock)

	graph, err := Build(context.Background(), NewInfoSchemaProvider(db, "blog", nil))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	post, err := graph.Describe("Post")
	require.NoError(t, err)
	assert.Equal(t, "Posts", post.PluralName)

	title, ok := post.Field("title")
	require.True(t, ok)
	assert.Equal(t, sqltype.String, title.Scalar)
	assert.Equal(t, "Headline", title.Description)

	published, _ := post.Field("publishedOn")
	assert.Equal(t, sqltype.LocalDate, published.Scalar)
	assert.True(t, published.Nullable)

	author, ok := post.Field("author")
	require.True(t, ok)
	assert.Equal(t, KindToOne, author.Kind)
	assert.False(t, author.Optional)
	editor, _ := post.Field("editor")
	assert.True(t, editor.Optional)

	tags, ok := post.Field("tags")
	require.True(t, ok)
	assert.Equal(t, KindToMany, tags.Kind)
	assert.True(t, tags.Owning)
	require.NotNil(t, tags.Junction)
	assert.Equal(t, "post_tags", tags.Junction.Table)

	user, err := graph.Describe("User")
	require.NoError(t, err)
	authored, ok := user.Field("authorPosts")
	require.True(t, ok)
	assert.Equal(t, "author", authored.MappedBy)
	assert.Equal(t, []JoinColumn{{Local: "id", Remote: "author_id"}}, authored.JoinColumns)
	_, ok = user.Field("editorPosts")
	assert.True(t, ok)

	tag, _ := graph.Describe("Tag")
	posts, ok := tag.Field("posts")
	require.True(t, ok)
	assert.False(t, posts.Owning)
	assert.Equal(t, "tags", posts.MappedBy)

	_, err = graph.Describe("PostTag")
	assert.True(t, errors.Is(err, ErrUnknownEntity))
}

func TestInfoSchemaProvider_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM INFORMATION_SCHEMA.TABLES").
		WithArgs("blog").
		WillReturnError(errors.New("access denied"))

	_, err = Build(context.Background(), NewInfoSchemaProvider(db, "blog", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get tables")
	assert.Contains(t, err.Error(), "access denied")
}
