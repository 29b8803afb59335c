package translation

import (
	"crypto/md5"
	"fmt"
	"sync"
)

// Cache 翻译缓存接口
type Cache interface {
	// Get 获取缓存
	Get(key string) (string, bool)

	// Set 设置缓存
	Set(key string, value string)

	// Clear 清除所有缓存
	Clear()

	// Stats 获取缓存统计信息
	Stats() CacheStats
}

// CacheStats 缓存统计信息
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// CacheKey 生成缓存键
// 同一原文在不同语言对或风格下的译文互不串用
func CacheKey(source, sourceLang, targetLang, style string) string {
	sum := md5.Sum([]byte(source + "|" + sourceLang + "|" + targetLang + "|" + style))
	return fmt.Sprintf("%x", sum)
}

// MemoryCache 内存缓存实现
type MemoryCache struct {
	data  map[string]string
	mutex sync.RWMutex
	stats CacheStats
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[string]string),
	}
}

// Get 获取缓存
func (c *MemoryCache) Get(key string) (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	value, exists := c.data[key]
	if !exists {
		c.stats.Misses++
		return "", false
	}

	c.stats.Hits++
	return value, true
}

// Set 设置缓存
func (c *MemoryCache) Set(key string, value string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data[key] = value
}

// Clear 清除所有缓存
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]string)
	c.stats = CacheStats{}
}

// Stats 获取缓存统计信息
func (c *MemoryCache) Stats() CacheStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	stats := c.stats
	stats.Entries = len(c.data)
	return stats
}
