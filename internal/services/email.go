package services

import (
	"context"
	"errors"
	"sync"

	"authcore/internal/config"
	"authcore/internal/logger"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const emailQueueSize = 100

var (
	ErrEmailQueueFull = errors.New("email queue is full")
	ErrMailerDisabled = errors.New("smtp is not configured")
)

type EmailJob struct {
	To      []string
	Subject string
	Body    string
	IsHTML  bool
}

// EmailService отправляет письма через SMTP. Отправка из запросов идёт
// только через очередь: запрос никогда не ждёт SMTP.
type EmailService struct {
	from  string
	queue chan EmailJob
	send  func(m *gomail.Message) error
	wg    sync.WaitGroup
}

func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	enabled := cfg.SMTPHost != ""

	return &EmailService{
		from:  cfg.MailFrom,
		queue: make(chan EmailJob, emailQueueSize),
		send: func(m *gomail.Message) error {
			if !enabled {
				return ErrMailerDisabled
			}
			return dialer.DialAndSend(m)
		},
	}
}

func (s *EmailService) message(to []string, subject, contentType, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody(contentType, body)
	return m
}

// Send: синхронная отправка текстового письма.
func (s *EmailService) Send(to []string, subject, body string) error {
	return s.send(s.message(to, subject, "text/plain", body))
}

// SendHTML: синхронная отправка HTML-письма.
func (s *EmailService) SendHTML(to []string, subject, body string) error {
	return s.send(s.message(to, subject, "text/html", body))
}

// Enqueue ставит письмо в очередь, не блокируясь. Переполненная очередь даёт ошибку.
func (s *EmailService) Enqueue(job EmailJob) error {
	select {
	case s.queue <- job:
		return nil
	default:
		logger.Log.Error("Очередь писем переполнена, письмо отброшено",
			zap.Int("recipients", len(job.To)), zap.String("subject", job.Subject))
		return ErrEmailQueueFull
	}
}

// StartWorkers запускает n обработчиков очереди до отмены ctx.
// После отмены воркеры дорабатывают то, что уже лежит в очереди.
func (s *EmailService) StartWorkers(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					s.drain(id)
					return
				case job := <-s.queue:
					s.deliver(id, job)
				}
			}
		}(i)
	}
	logger.Log.Info("Запущены email-воркеры", zap.Int("workers", n))
}

// drain отправляет оставшиеся письма, не дожидаясь новых.
func (s *EmailService) drain(worker int) {
	for {
		select {
		case job := <-s.queue:
			s.deliver(worker, job)
		default:
			return
		}
	}
}

// Wait ждёт завершения воркеров после отмены контекста.
func (s *EmailService) Wait() {
	s.wg.Wait()
}

func (s *EmailService) deliver(worker int, job EmailJob) {
	var err error
	if job.IsHTML {
		err = s.SendHTML(job.To, job.Subject, job.Body)
	} else {
		err = s.Send(job.To, job.Subject, job.Body)
	}
	if err != nil {
		logger.Log.Error("Не удалось отправить письмо",
			zap.Int("worker", worker), zap.String("subject", job.Subject), zap.Error(err))
		return
	}
	logger.Log.Debug("Письмо отправлено", zap.Int("worker", worker), zap.String("subject", job.Subject))
}
