package validator

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"ragflow-bridge/internal/model"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func jsonTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
	}
	if name == "" {
		return fld.Name
	}
	return name
}

func registerRules(v *validator.Validate) {
	v.RegisterTagNameFunc(jsonTagName)
	_ = v.RegisterValidation("chunk_method", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || model.ChunkMethod(s).Valid()
	})
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || model.Permission(s).Valid()
	})
}

// Get 返回注册了自定义规则的全局校验器。
func Get() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		registerRules(validate)
	})
	return validate
}

// Struct 校验结构体。
func Struct(s interface{}) error {
	return Get().Struct(s)
}

// RegisterGinRules 将自定义规则注册到 gin 的 binding 校验器中。
func RegisterGinRules() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		registerRules(v)
	}
}

// Describe 把校验错误转换为简短的可读信息。
func Describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" 不能为空")
		case "chunk_method":
			parts = append(parts, fe.Field()+" 不是支持的切块方式")
		case "permission":
			parts = append(parts, fe.Field()+" 只能是 me 或 team")
		case "max", "min", "gte", "lte", "oneof":
			parts = append(parts, fe.Field()+" 取值不合法 ("+fe.Tag()+"="+fe.Param()+")")
		default:
			parts = append(parts, fe.Field()+" 校验失败: "+fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}
