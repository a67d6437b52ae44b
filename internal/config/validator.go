package config

import (
	"fmt"
	"path"
	"strings"
)

// Validator 服务配置验证器
type Validator struct {
	config *Config
}

// NewValidator 创建配置验证器
func NewValidator(config *Config) *Validator {
	return &Validator{
		config: config,
	}
}

// Validate 验证配置
func (v *Validator) Validate() error {
	var errors []string

	// 验证应用配置
	if err := v.validateApp(); err != nil {
		errors = append(errors, fmt.Sprintf("应用配置错误: %v", err))
	}

	// 验证服务器配置
	if err := v.validateServer(); err != nil {
		errors = append(errors, fmt.Sprintf("服务器配置错误: %v", err))
	}

	// 验证数据库配置
	if err := v.validateDatabase(); err != nil {
		errors = append(errors, fmt.Sprintf("数据库配置错误: %v", err))
	}

	// 验证Redis配置
	if err := v.validateRedis(); err != nil {
		errors = append(errors, fmt.Sprintf("Redis配置错误: %v", err))
	}

	// 验证认证配置
	if err := v.validateAuth(); err != nil {
		errors = append(errors, fmt.Sprintf("认证配置错误: %v", err))
	}

	// 验证热重载配置
	if err := v.validateHotReload(); err != nil {
		errors = append(errors, fmt.Sprintf("热重载配置错误: %v", err))
	}

	// 验证版本管理配置
	if err := v.validateVersions(); err != nil {
		errors = append(errors, fmt.Sprintf("版本管理配置错误: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("配置验证失败:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

// validateApp 验证应用配置
func (v *Validator) validateApp() error {
	app := v.config.App

	if app.Name == "" {
		return fmt.Errorf("应用名称不能为空")
	}

	validEnvironments := []string{"development", "staging", "production"}
	valid := false
	for _, env := range validEnvironments {
		if app.Environment == env {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("无效的环境: %s, 有效值: %v", app.Environment, validEnvironments)
	}

	return nil
}

// validateServer 验证服务器配置
func (v *Validator) validateServer() error {
	server := v.config.Server

	if server.Port <= 0 || server.Port > 65535 {
		return fmt.Errorf("无效的端口号: %d", server.Port)
	}

	if server.ReadTimeout <= 0 {
		return fmt.Errorf("读取超时必须大于0")
	}

	if server.WriteTimeout <= 0 {
		return fmt.Errorf("写入超时必须大于0")
	}

	if server.MaxHeaderBytes <= 0 {
		return fmt.Errorf("最大头部字节数必须大于0")
	}

	return nil
}

// validateDatabase 验证数据库配置
func (v *Validator) validateDatabase() error {
	db := v.config.Database

	// 如果数据库未启用，跳过验证
	if !db.Enabled {
		return nil
	}

	if db.Host == "" {
		return fmt.Errorf("数据库主机不能为空")
	}

	if db.Port <= 0 || db.Port > 65535 {
		return fmt.Errorf("无效的数据库端口: %d", db.Port)
	}

	if db.User == "" {
		return fmt.Errorf("数据库用户名不能为空")
	}

	if db.DBName == "" {
		return fmt.Errorf("数据库名称不能为空")
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	valid := false
	for _, mode := range validSSLModes {
		if db.SSLMode == mode {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("无效的SSL模式: %s, 有效值: %v", db.SSLMode, validSSLModes)
	}

	if db.MaxOpen <= 0 {
		return fmt.Errorf("最大连接数必须大于0")
	}

	if db.MaxIdle < 0 {
		return fmt.Errorf("最大空闲连接数不能为负数")
	}

	if db.MaxIdle > db.MaxOpen {
		return fmt.Errorf("最大空闲连接数不能大于最大连接数")
	}

	return nil
}

// validateRedis 验证Redis配置
func (v *Validator) validateRedis() error {
	redis := v.config.Redis

	// 如果Redis未启用，跳过验证
	if !redis.Enabled {
		return nil
	}

	if redis.Addr == "" {
		return fmt.Errorf("Redis地址不能为空")
	}

	// 验证Redis地址格式
	if !strings.Contains(redis.Addr, ":") {
		return fmt.Errorf("无效的Redis地址格式: %s", redis.Addr)
	}

	if redis.DB < 0 || redis.DB > 15 {
		return fmt.Errorf("无效的Redis数据库编号: %d", redis.DB)
	}

	if redis.PoolSize < 0 {
		return fmt.Errorf("Redis连接池大小不能为负数")
	}

	return nil
}

// validateAuth 验证认证配置
func (v *Validator) validateAuth() error {
	auth := v.config.Auth

	if !auth.Enabled {
		return nil
	}

	if auth.SecretKey == "" {
		return fmt.Errorf("JWT密钥不能为空")
	}

	if len(auth.SecretKey) < 32 {
		return fmt.Errorf("JWT密钥长度必须至少32个字符")
	}

	if auth.Duration <= 0 {
		return fmt.Errorf("JWT有效期必须大于0")
	}

	return nil
}

// validateHotReload 验证热重载配置
func (v *Validator) validateHotReload() error {
	hr := v.config.HotReload

	if !hr.Enabled {
		return nil
	}

	if len(hr.WatchDirs) == 0 && len(hr.WatchFiles) == 0 {
		return fmt.Errorf("监控目录和监控文件不能同时为空")
	}

	if hr.CheckInterval <= 0 {
		return fmt.Errorf("检查间隔必须大于0")
	}

	if hr.BackupCount <= 0 {
		return fmt.Errorf("备份保留数量必须大于0")
	}

	if hr.ValidationTimeout <= 0 {
		return fmt.Errorf("验证超时必须大于0")
	}

	if hr.HistorySize <= 0 {
		return fmt.Errorf("变更历史大小必须大于0")
	}

	return nil
}

// validateVersions 验证版本管理配置
func (v *Validator) validateVersions() error {
	versions := v.config.Versions

	if versions.Dir == "" {
		return fmt.Errorf("版本目录不能为空")
	}

	if versions.KeepCount <= 0 {
		return fmt.Errorf("版本保留数量必须大于0")
	}

	return nil
}

// ValueType 规则允许的值类型
type ValueType string

const (
	TypeAny    ValueType = ""
	TypeString ValueType = "string"
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeBool   ValueType = "bool"
	TypeMap    ValueType = "map"
	TypeList   ValueType = "list"
)

// Rule 声明式字段验证规则。KeyPattern使用glob语法匹配扁平化后的点路径。
type Rule struct {
	KeyPattern    string
	Type          ValueType
	Required      bool
	Min           *float64
	Max           *float64
	AllowedValues []interface{}
	Check         func(value interface{}) error
}

// RuleSet validates configuration documents against declarative field rules.
// It implements DocumentValidator.
type RuleSet struct {
	Name  string
	Rules []Rule
}

// NewRuleSet creates a named rule set
func NewRuleSet(name string, rules ...Rule) *RuleSet {
	return &RuleSet{Name: name, Rules: rules}
}

// Validate checks every flattened key of the document against the rules
func (rs *RuleSet) Validate(name string, doc Document) error {
	flat := Flatten(doc)
	var errors []string

	for _, rule := range rs.Rules {
		matched := false
		for key, value := range flat {
			ok, err := path.Match(rule.KeyPattern, key)
			if err != nil {
				return fmt.Errorf("invalid key pattern %q: %w", rule.KeyPattern, err)
			}
			if !ok {
				continue
			}
			matched = true
			if err := rule.checkValue(key, value); err != nil {
				errors = append(errors, err.Error())
			}
		}
		if !matched && rule.Required {
			errors = append(errors, fmt.Sprintf("缺少必需的配置项: %s", rule.KeyPattern))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("配置验证失败:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func (r Rule) checkValue(key string, value interface{}) error {
	if err := checkType(key, value, r.Type); err != nil {
		return err
	}

	if r.Min != nil || r.Max != nil {
		num, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("配置项 %s 不是数值，无法进行范围检查", key)
		}
		if r.Min != nil && num < *r.Min {
			return fmt.Errorf("配置项 %s 的值 %v 小于最小值 %v", key, value, *r.Min)
		}
		if r.Max != nil && num > *r.Max {
			return fmt.Errorf("配置项 %s 的值 %v 大于最大值 %v", key, value, *r.Max)
		}
	}

	if len(r.AllowedValues) > 0 {
		allowed := false
		for _, av := range r.AllowedValues {
			if fmt.Sprintf("%v", av) == fmt.Sprintf("%v", value) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("配置项 %s 的值 %v 无效, 有效值: %v", key, value, r.AllowedValues)
		}
	}

	if r.Check != nil {
		if err := r.Check(value); err != nil {
			return fmt.Errorf("配置项 %s 自定义验证失败: %v", key, err)
		}
	}

	return nil
}

func checkType(key string, value interface{}, t ValueType) error {
	if t == TypeAny {
		return nil
	}

	ok := false
	switch t {
	case TypeString:
		_, ok = value.(string)
	case TypeInt:
		switch value.(type) {
		case int, int32, int64:
			ok = true
		}
	case TypeFloat:
		switch value.(type) {
		case float32, float64, int, int32, int64:
			ok = true
		}
	case TypeBool:
		_, ok = value.(bool)
	case TypeMap:
		_, ok = value.(map[string]interface{})
	case TypeList:
		_, ok = value.([]interface{})
	}

	if !ok {
		return fmt.Errorf("配置项 %s 类型错误: 期望 %s, 实际 %T", key, t, value)
	}
	return nil
}

func toFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Float returns a pointer to a float64, for use in Rule bounds
func Float(f float64) *float64 {
	return &f
}
