package models

import (
    "time"
)

// FileType 文件类型
type FileType string

const (
    PDF FileType = "pdf"
)

// DocumentInfo 文档基本信息
type DocumentInfo struct {
    ID        string    `json:"id"`
    Title     string    `json:"title,omitempty"`
    Author    string    `json:"author,omitempty"`
    Producer  string    `json:"producer,omitempty"`
    FileType  FileType  `json:"fileType"`
    FileSize  int64     `json:"fileSize"`
    MimeType  string    `json:"mimeType"`
    Pages     int       `json:"pages"`
    TextPages int       `json:"textPages"`
    Hash      string    `json:"hash"`
    CreatedAt time.Time `json:"createdAt"`
}

// Scanned reports whether no page carries extractable text.
func (i DocumentInfo) Scanned() bool {
    return i.Pages > 0 && i.TextPages == 0
}

// CompressionTask 压缩任务
type CompressionTask struct {
    ID         string            `json:"id"`
    Status     ProcessingStatus  `json:"status"`
    Priority   int               `json:"priority"`
    Progress   float64           `json:"progress"`
    Stage      string            `json:"stage,omitempty"`
    Error      string            `json:"error,omitempty"`
    Filename   string            `json:"filename"`
    TargetSize int64             `json:"targetSize"`
    Metadata   map[string]string `json:"metadata,omitempty"`
    CreatedAt  time.Time         `json:"createdAt"`
    UpdatedAt  time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
    StatusPending   ProcessingStatus = "pending"
    StatusRunning   ProcessingStatus = "running"
    StatusCompleted ProcessingStatus = "completed"
    StatusFailed    ProcessingStatus = "failed"
    StatusCancelled ProcessingStatus = "cancelled"
)

// Terminal reports whether no further transitions happen.
func (s ProcessingStatus) Terminal() bool {
    switch s {
    case StatusCompleted, StatusFailed, StatusCancelled:
        return true
    }
    return false
}
