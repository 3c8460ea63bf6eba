package workload

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"yqhp/variant-bench/pkg/types"
)

// 内置工作负载名称
const (
	ReadHeavy    = "read-heavy"
	JoinHeavy    = "join-heavy"
	WriteAndRead = "write-and-read"
)

func mustCheck(c Check, err error) Check {
	if err != nil {
		panic(err)
	}
	return c
}

// NewReadHeavy 列表后逐个按 ID 读取
func NewReadHeavy() *Workload {
	return &Workload{
		Name:        ReadHeavy,
		Description: "GET /posts, then GET /posts/{id} for every listed id",
		Steps: []*Step{
			{
				Operation:    "list",
				Method:       "GET",
				Path:         "/posts",
				Checks:       []Check{StatusIn(200), NoErrors(), NonEmptyArray()},
				Project:      MustProjection("$[*].id"),
				CountsAsRead: true,
			},
			{
				Operation:    "getById",
				Method:       "GET",
				Path:         "/posts/{id}",
				Consumes:     "list",
				Checks:       []Check{StatusIn(200), NoErrors(), mustCheck(HasField("$.id"))},
				CountsAsRead: true,
			},
		},
	}
}

// NewJoinHeavy 带评论关联的列表与详情读取
func NewJoinHeavy() *Workload {
	return &Workload{
		Name:        JoinHeavy,
		Description: "GET /posts-with-comments, then GET /posts-with-comments/{id} for every listed id",
		Steps: []*Step{
			{
				Operation: "listWithJoin",
				Method:    "GET",
				Path:      "/posts-with-comments",
				// 只检查第一条帖子的评论
				Checks: []Check{
					StatusIn(200), NoErrors(), NonEmptyArray(),
					mustCheck(NonEmptyAt("$[0].comments")),
				},
				Project:      MustProjection("$[*].id"),
				CountsAsRead: true,
			},
			{
				Operation: "getByIdWithJoin",
				Method:    "GET",
				Path:      "/posts-with-comments/{id}",
				Consumes:  "listWithJoin",
				Checks: []Check{
					StatusIn(200), NoErrors(),
					mustCheck(HasField("$.id")),
					mustCheck(NonEmptyAt("$.comments")),
				},
				CountsAsRead: true,
			},
		},
	}
}

// NewWriteAndRead 创建帖子后读取并校验 ID
func NewWriteAndRead() *Workload {
	return &Workload{
		Name:        WriteAndRead,
		Description: "POST /posts with a unique payload, then GET /posts/{id} for the created id",
		Steps: []*Step{
			{
				Operation: "create",
				Method:    "POST",
				Path:      "/posts",
				Body:      createPostBody,
				Checks: []Check{
					StatusIn(200, 201), ErrorsAbsent(),
					mustCheck(Truthy("$.id")),
				},
				Project: MustProjection("$.id"),
			},
			{
				Operation: "get",
				Method:    "GET",
				Path:      "/posts/{id}",
				Consumes:  "create",
				Checks: []Check{
					StatusIn(200), ErrorsAbsent(),
					mustCheck(EqualsConsumed("$.id")),
				},
			},
		},
	}
}

type postPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// UniqueID 返回 "<unix 毫秒>-<随机串>"
func UniqueID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + random
}

// createPostBody 生成唯一的创建请求体
func createPostBody(variant types.Variant, _ string) ([]byte, error) {
	now := time.Now().UTC()
	payload := postPayload{
		Title: "Load Test Post " + UniqueID(now),
		Body: fmt.Sprintf("This is a test post created during load testing for %s. Timestamp: %s",
			variant.Name, now.Format(time.RFC3339)),
	}
	return sonic.Marshal(payload)
}

// Builtin 返回全部内置工作负载
func Builtin() []*Workload {
	return []*Workload{NewReadHeavy(), NewJoinHeavy(), NewWriteAndRead()}
}
