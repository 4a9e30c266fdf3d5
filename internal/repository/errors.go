package repository

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound 记录不存在（或不属于调用者）
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict 乐观锁版本不匹配
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate 主键已存在
	ErrDuplicate = errors.New("duplicate key")
)

// Translate 将驱动错误转换为仓库层错误
func Translate(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}
