package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"go-direct-chat/internal/model"
	"go-direct-chat/pkg/db"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// 需要TEST_MYSQL_DSN指向一个测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	if err := db.InitDB(dsn); err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	cleanupMessageTable(t)
	cleanupUserTable(t)
	return db.DB
}

// 需要TEST_MONGO_URI指向一个测试实例
func setupTestMongo(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	client, err := db.InitMongo(context.Background(), uri, 5*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to test mongo: %v", err)
	}
	database := client.Database("direct_chat_test")
	if err := database.Drop(context.Background()); err != nil {
		t.Fatalf("Failed to reset test mongo database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return database
}

// 帮助函数：清空 users 表中的所有数据
func cleanupUserTable(t *testing.T) {
	if err := db.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&model.User{}).Error; err != nil {
		t.Logf("Failed to cleanup users table: %v", err)
	}
}

// 帮助函数：清空 messages 表中的所有数据
func cleanupMessageTable(t *testing.T) {
	if err := db.DB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Message{}).Error; err != nil {
		t.Logf("Failed to cleanup messages table: %v", err)
	}
}
