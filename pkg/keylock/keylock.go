package keylock

import "sync"

// KeyLock 以 key 為單位的互斥鎖
// 不同 key 之間互不阻塞，同一 key 同時只有一個持有者。
// 閒置的 key 會在最後一位持有者釋放時回收，避免 map 無限成長。
type KeyLock[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New 建立 KeyLock
func New[K comparable]() *KeyLock[K] {
	return &KeyLock[K]{locks: make(map[K]*entry)}
}

// Lock 取得 key 的鎖，回傳的 unlock 函式必須呼叫且只能呼叫一次
func (k *KeyLock[K]) Lock(key K) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len 目前持有或等待中的 key 數量
func (k *KeyLock[K]) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
